package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

const banner = `
     _           _                 _       
  __| | __ _ ___| |__   __ _  __ _| |_ ___ 
 / _' |/ _' / __| '_ \ / _' |/ _' | __/ _ \
| (_| | (_| \__ \ | | | (_| | (_| | ||  __/
 \__,_|\__,_|___/_| |_|\__, |\__,_|\__\___|
                       |___/               
`

func printBanner(w io.Writer) {
	color.New(color.FgBlue).Fprint(w, banner)
	color.New(color.FgGreen).Fprintf(w, "  Dashboard authorization gateway - Version %s\n\n", Version)
}

func printField(w io.Writer, name string, value any) {
	fmt.Fprintf(w, "  %s %v\n", color.CyanString("%-10s", name+":"), value)
}
