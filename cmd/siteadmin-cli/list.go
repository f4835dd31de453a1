package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/screens"
	"github.com/bigkaa/siteadmin/internal/service"
)

var screensCmd = &cobra.Command{
	Use:   "screens",
	Short: "Показать экраны консоли",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := screens.Default()
		if err != nil {
			return err
		}
		return printScreens(cmd.OutOrStdout(), reg)
	},
}

func printScreens(w io.Writer, reg *screens.Registry) error {
	if flagJSON {
		type info struct {
			Name       string   `json:"name"`
			Title      string   `json:"title"`
			Collection string   `json:"collection"`
			Filters    []string `json:"filters"`
			SortKeys   []string `json:"sort_keys"`
		}
		out := make([]info, 0, len(reg.Names()))
		for _, name := range reg.Names() {
			sc, _ := reg.Get(name)
			out = append(out, info{name, sc.Title, sc.Collection, sc.Filters, sc.SortKeys})
		}
		return writeJSON(w, out)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ЭКРАН\tКОЛЛЕКЦИЯ\tНАЗВАНИЕ")
	for _, name := range reg.Names() {
		sc, _ := reg.Get(name)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, sc.Collection, sc.Title)
	}
	return tw.Flush()
}

var listFlags criteriaFlags
var listPage int

var listCmd = &cobra.Command{
	Use:   "list <screen> [поле=значение...]",
	Short: "Страница списка экрана",
	Long: `List строит страницу списка экрана так же, как консоль: поиск,
фильтры равенства, диапазон дат, сортировка и страница.

Пример:
  siteadmin-cli list links status=active --sort name
  siteadmin-cli list contact_leads --from 2024-01-01 --to 2024-01-31 --page 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := listFlags.criteria(args[1:])
		if err != nil {
			return err
		}
		res, err := current.listing.ListScreen(cmd.Context(), args[0], service.Query{Criteria: c, Page: listPage})
		if err != nil {
			return err
		}
		return printPage(cmd.OutOrStdout(), res)
	},
}

func init() {
	listCmd.Flags().StringVarP(&listFlags.search, "query", "q", "", "поисковая строка")
	listCmd.Flags().StringVar(&listFlags.sort, "sort", "", "ключ сортировки")
	listCmd.Flags().StringVar(&listFlags.dir, "dir", "", "направление: asc, desc")
	listCmd.Flags().StringVar(&listFlags.from, "from", "", "начало диапазона дат (2006-01-02)")
	listCmd.Flags().StringVar(&listFlags.to, "to", "", "конец диапазона дат (2006-01-02)")
	listCmd.Flags().IntVar(&listPage, "page", 1, "номер страницы")
}

func printPage(w io.Writer, res *service.Result) error {
	if flagJSON {
		items := make([]map[string]any, len(res.Items))
		for i, r := range res.Items {
			items[i] = map[string]any{"_id": r.ID}
			for k, v := range r.Fields {
				items[i][k] = v
			}
		}
		return writeJSON(w, map[string]any{
			"screen":      res.Screen,
			"items":       items,
			"window":      res.Window,
			"total_pages": res.TotalPages,
			"facets":      res.Facets,
		})
	}

	sc, _ := current.screens.Get(res.Screen)
	cols := summaryFields(sc)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "ID")
	for _, c := range cols {
		fmt.Fprintf(tw, "\t%s", c)
	}
	fmt.Fprintln(tw)
	for _, r := range res.Items {
		fmt.Fprint(tw, r.ID)
		for _, c := range cols {
			fmt.Fprintf(tw, "\t%s", cellText(r, c))
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nЗаписи %d-%d из %d, страница %d из %d\n",
		res.From, res.To, res.Window.TotalItems, res.Window.CurrentPage, res.TotalPages)
	return err
}

// summaryFields — колонки табличного вывода: первые поля поиска и статус.
func summaryFields(sc *screens.Screen) []string {
	cols := make([]string, 0, 4)
	for _, f := range sc.SearchFields {
		if len(cols) == 2 {
			break
		}
		cols = append(cols, f)
	}
	if sc.StatusField != "" {
		cols = append(cols, sc.StatusField)
	}
	if sc.DateField != "" {
		cols = append(cols, sc.DateField)
	}
	return cols
}

func cellText(r docstore.Record, field string) string {
	s := r.String(field)
	if runes := []rune(s); len(runes) > 40 {
		return string(runes[:37]) + "..."
	}
	return s
}
