package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportFlags criteriaFlags
var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <screen> [поле=значение...]",
	Short: "CSV-выгрузка отфильтрованного списка заявок",
	Long: `Export выгружает в CSV все записи экрана, прошедшие фильтры
(без разбиения на страницы). Без --output файл получает имя
<префикс>_YYYY-MM-DD.csv в текущем каталоге; "-" — вывод в stdout.

Пример:
  siteadmin-cli export contact_leads status=new
  siteadmin-cli export partner_leads --from 2024-01-01 --to 2024-03-31 -o -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		filename, err := current.export.Prepare(name)
		if err != nil {
			return err
		}
		c, err := exportFlags.criteria(args[1:])
		if err != nil {
			return err
		}

		// Файл пишется только после успешного чтения всех записей.
		var buf bytes.Buffer
		rows, err := current.export.Export(cmd.Context(), name, c, &buf)
		if err != nil {
			return err
		}

		out := exportOutput
		if out == "" {
			out = filename
		}
		if out == "-" {
			_, err = cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("запись %s: %w", out, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Выгружено строк: %d → %s\n", rows, out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFlags.search, "query", "q", "", "поисковая строка")
	exportCmd.Flags().StringVar(&exportFlags.sort, "sort", "", "ключ сортировки")
	exportCmd.Flags().StringVar(&exportFlags.dir, "dir", "", "направление: asc, desc")
	exportCmd.Flags().StringVar(&exportFlags.from, "from", "", "начало диапазона дат (2006-01-02)")
	exportCmd.Flags().StringVar(&exportFlags.to, "to", "", "конец диапазона дат (2006-01-02)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", `файл выгрузки; "-" — stdout`)
}
