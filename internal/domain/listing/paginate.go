package listing

import "github.com/bigkaa/siteadmin/internal/docstore"

// DefaultPageSize — размер страницы, если не задан.
const DefaultPageSize = 10

// maxButtons — сколько номеров страниц показывать в навигации.
const maxButtons = 5

// Window — окно постраничного вывода.
type Window struct {
	PageSize    int `json:"page_size"`
	CurrentPage int `json:"current_page"`
	TotalItems  int `json:"total_items"`
}

// TotalPages = max(1, ceil(TotalItems / PageSize)).
func (w Window) TotalPages() int {
	size := w.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := (w.TotalItems + size - 1) / size
	return max(1, pages)
}

// Clamp возвращает окно с CurrentPage в пределах [1, TotalPages].
func (w Window) Clamp() Window {
	if w.PageSize <= 0 {
		w.PageSize = DefaultPageSize
	}
	if w.TotalItems < 0 {
		w.TotalItems = 0
	}
	w.CurrentPage = min(max(w.CurrentPage, 1), w.TotalPages())
	return w
}

// Page — одна страница списка.
type Page struct {
	Items      []docstore.Record
	Window     Window
	TotalPages int
	// Номера страниц для навигации (не больше пяти).
	Buttons []int
	// Номера первой и последней записи на странице (с 1), 0 — если пусто.
	From, To int
}

// Paginate ограничивает номер страницы и вырезает её из records.
func Paginate(records []docstore.Record, pageSize, currentPage int) Page {
	w := Window{PageSize: pageSize, CurrentPage: currentPage, TotalItems: len(records)}.Clamp()

	start := (w.CurrentPage - 1) * w.PageSize
	end := min(start+w.PageSize, len(records))

	items := make([]docstore.Record, end-start)
	copy(items, records[start:end])

	p := Page{
		Items:      items,
		Window:     w,
		TotalPages: w.TotalPages(),
		Buttons:    PageButtons(w.CurrentPage, w.TotalPages()),
	}
	if len(items) > 0 {
		p.From, p.To = start+1, end
	}
	return p
}

// PageButtons возвращает до пяти номеров страниц вокруг текущей:
// все, если страниц не больше пяти; 1..5 в начале; последние пять в конце;
// иначе current-2..current+2.
func PageButtons(current, total int) []int {
	total = max(total, 1)
	current = min(max(current, 1), total)

	var from, to int
	switch {
	case total <= maxButtons:
		from, to = 1, total
	case current <= 3:
		from, to = 1, maxButtons
	case current >= total-2:
		from, to = total-maxButtons+1, total
	default:
		from, to = current-2, current+2
	}

	buttons := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		buttons = append(buttons, i)
	}
	return buttons
}
