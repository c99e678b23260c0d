package commands

import (
	"os"

	"studienet-scraper/internal/studienet"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(classesCmd)
	rootCmd.AddCommand(materialsCmd)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

// withSession runs `fn` in a logged in session, exiting on any error.
func withSession(cmd *cobra.Command, fn func(s *studienet.Session) error) {
	cfg := loadConfig(false, nil)

	b, err := newBrowser(cmd.Context(), cfg, newLimiter(cfg))
	if err != nil {
		fatal("failed to start browser", err)
	}
	err = studienet.WithSession(cmd.Context(), b, cfg.Portal, tel, cfg.Username, cfg.Password, fn)
	if err != nil {
		fatal(cmd.Name()+" failed", err)
	}
}

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "Lists the classes on the all classes page.",
	Run: func(cmd *cobra.Command, args []string) {
		withSession(cmd, func(s *studienet.Session) error {
			classes, err := s.ListClasses(cmd.Context())
			if err != nil {
				return err
			}

			t := newTable()
			t.AppendHeader(table.Row{"Class", "Url"})
			for _, c := range classes {
				t.AppendRow(table.Row{c.Name, c.Url})
			}
			t.Render()
			return nil
		})
	},
}

var materialsCmd = &cobra.Command{
	Use:   "materials <class-url>",
	Short: "Lists the download urls of the materials of a class.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withSession(cmd, func(s *studienet.Session) error {
			materials, err := s.ListMaterials(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			t := newTable()
			t.AppendHeader(table.Row{"#", "Url"})
			for i, m := range materials {
				t.AppendRow(table.Row{i + 1, m})
			}
			t.Render()
			return nil
		})
	},
}
