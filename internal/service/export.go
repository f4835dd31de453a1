// export.go — CSV-выгрузка отфильтрованного (не постраничного) списка заявок.
package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/listing"
	"github.com/bigkaa/siteadmin/internal/domain/value"
	"github.com/bigkaa/siteadmin/internal/screens"
)

const (
	// exportDateLayout — формат колонок-дат в выгрузке.
	exportDateLayout = "02 Jan 2006, 03:04 pm"
	// invalidDate — значение для отсутствующей или нераспознанной даты.
	invalidDate = "Invalid Date"
)

// ExportService — CSV-выгрузка экранов.
type ExportService struct {
	listing *ListingService
	now     func() time.Time
	logger  *slog.Logger
}

// NewExportService создаёт сервис выгрузки.
func NewExportService(ls *ListingService, logger *slog.Logger) *ExportService {
	return &ExportService{
		listing: ls,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "export_service")),
	}
}

// FileName возвращает имя файла выгрузки: <prefix>_YYYY-MM-DD.csv (дата UTC).
func FileName(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, now.UTC().Format(time.DateOnly))
}

// Prepare проверяет, что экран поддерживает выгрузку, и возвращает имя файла.
func (s *ExportService) Prepare(name string) (string, error) {
	sc, err := s.listing.Screen(name)
	if err != nil {
		return "", err
	}
	if sc.Export == nil {
		return "", fmt.Errorf("%w: выгрузка экрана %s", ErrNotSupported, name)
	}
	return FileName(sc.Export.FilePrefix, s.now()), nil
}

// Export пишет в w записи экрана, прошедшие критерии. Возвращает число строк.
func (s *ExportService) Export(ctx context.Context, name string, c listing.Criteria, w io.Writer) (int, error) {
	if _, err := s.Prepare(name); err != nil {
		return 0, err
	}
	sc, _ := s.listing.Screen(name)
	records, err := s.listing.Filtered(ctx, name, c)
	if err != nil {
		return 0, err
	}
	if err := WriteCSV(w, sc.Export.Columns, records); err != nil {
		return 0, fmt.Errorf("запись CSV: %w", err)
	}
	s.logger.Info("Выгрузка CSV",
		slog.String("screen", name),
		slog.Int("rows", len(records)),
	)
	return len(records), nil
}

// WriteCSV пишет заголовок и строки. Значения берутся в кавычки,
// кавычки внутри удваиваются. Строки разделяются "\n".
func WriteCSV(w io.Writer, columns []screens.Column, records []docstore.Record) error {
	bw := bufio.NewWriter(w)
	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = c.Header
	}
	bw.WriteString(strings.Join(headers, ","))

	row := make([]string, len(columns))
	for _, r := range records {
		for i, c := range columns {
			row[i] = quote(cell(r, c))
		}
		bw.WriteString("\n")
		bw.WriteString(strings.Join(row, ","))
	}
	return bw.Flush()
}

// cell вычисляет значение колонки для записи.
func cell(r docstore.Record, c screens.Column) string {
	if c.Date {
		t, ok := value.Time(r.Get(c.Fields[0]))
		if !ok || t.IsZero() {
			return invalidDate
		}
		return t.UTC().Format(exportDateLayout)
	}
	for _, f := range c.Fallback {
		if v := r.String(f); v != "" {
			return v
		}
	}
	parts := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		parts = append(parts, r.String(f))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
