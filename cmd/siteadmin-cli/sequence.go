package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bigkaa/siteadmin/internal/domain/model"
)

var counters = []string{model.CounterBlog, model.CounterBlogCategory}

var sequenceCmd = &cobra.Command{
	Use:   "next-sequence <counter>",
	Short: "Выдать следующий номер счётчика",
	Long: `Next-sequence атомарно увеличивает счётчик и печатает новое значение.
Номер расходуется: повторный вызов выдаст следующий.

Счётчики: ` + strings.Join(counters, ", "),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !slices.Contains(counters, args[0]) {
			return fmt.Errorf("неизвестный счётчик %q (допустимые: %s)", args[0], strings.Join(counters, ", "))
		}
		n, err := current.store.NextSequence(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"counter": args[0], "value": n})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
		return err
	},
}

var nextLocationIDCmd = &cobra.Command{
	Use:   "next-location-id",
	Short: "Предложить ID нового франчайзи (максимум + 1)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := current.entities.SuggestLocationID(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"id": n})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
		return err
	},
}
