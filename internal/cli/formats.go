package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/asyfig/asyfig/pkg/display"
	"github.com/asyfig/asyfig/pkg/render"
)

// newFormatsCmd creates the formats command, which lists the supported output
// formats with their MIME types.
func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported output formats",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			formats := make([]string, 0, len(render.ValidFormats))
			for format := range render.ValidFormats {
				formats = append(formats, format)
			}
			sort.Strings(formats)

			for _, format := range formats {
				mimeType, _ := display.MIMEForFormat(format)
				label := format
				if format == render.DefaultFormat {
					label += " (default)"
				}
				printKeyValue(label, mimeType)
			}
		},
	}
}
