// watch.go — живой список экрана по WebSocket: GET /api/v1/screens/{screen}/watch.
// Соединение держит собственную сессию списка (listing.Session): клиент меняет
// критерии и страницу сообщениями, сервер перечитывает записи при событиях
// ленты изменений и присылает актуальную страницу.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apierrors "github.com/bigkaa/siteadmin/internal/api/errors"
	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/listing"
	"github.com/bigkaa/siteadmin/internal/domain/model"
	"github.com/bigkaa/siteadmin/internal/domain/rbac"
	"github.com/bigkaa/siteadmin/internal/screens"
	"github.com/bigkaa/siteadmin/internal/service"
)

// Типы сообщений WebSocket.
const (
	msgCriteria = "criteria"
	msgPage     = "page"
	msgToggle   = "toggle"
	msgStatus   = "status"
	msgPing     = "ping"

	msgView  = "view"
	msgError = "error"
	msgPong  = "pong"
)

// codeUnknownType — код ошибки для неизвестного типа сообщения.
const codeUnknownType = "UNKNOWN_TYPE"

// watchBuffer — буфер подписки на ленту изменений.
const watchBuffer = 64

// ClientMessage — сообщение клиента.
type ClientMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage — сообщение сервера.
type ServerMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// criteriaData — критерии в сообщении criteria. Ключи фильтров — поля экрана.
type criteriaData struct {
	Search  string            `json:"q"`
	Filters map[string]string `json:"filters"`
	Sort    string            `json:"sort"`
	Dir     string            `json:"dir"`
	From    string            `json:"from"`
	To      string            `json:"to"`
}

type pageData struct {
	Page int `json:"page"`
}

type recordData struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// viewData — страница списка и причина отправки.
type viewData struct {
	pageResponse
	Reason string          `json:"reason"`
	Event  *docstore.Event `json:"event,omitempty"`
}

// Watch — GET /api/v1/screens/{screen}/watch (WebSocket).
// Начальные критерии берутся из строки запроса, как у ListRecords.
func (h *APIHandler) Watch(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.screen(w, r)
	if !ok {
		return
	}
	if sc.Name == screenUsers && !h.allowed(w, r, rbac.ActionManageUsers) {
		return
	}
	c, err := criteriaFromQuery(sc, r.URL.Query())
	if err != nil {
		h.fail(w, r, "watch", err)
		return
	}
	sess, err := h.Listing.OpenSession(r.Context(), sc.Name, c)
	if err != nil {
		h.fail(w, r, "watch", err)
		return
	}
	sess.SetPage(pageFromQuery(r))

	// Таймаут записи сервера не должен обрывать долгоживущее соединение.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket: ошибка accept", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	// Подписка на коллекцию экрана и справочники: смена названия категории
	// меняет денормализованные поля списка.
	watched := map[string]bool{sc.Collection: true}
	for _, ref := range sc.References {
		watched[ref.Collection] = true
	}
	events, unsubscribe := h.Broker.Subscribe("", watchBuffer)
	defer unsubscribe()

	ctx := r.Context()
	incoming := make(chan ClientMessage)
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg ClientMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				readErr <- err
				return
			}
			select {
			case incoming <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	wt := &watcher{h: h, conn: conn, sc: sc, sess: sess}
	wt.send(ctx, ServerMessage{Type: msgView, Data: wt.view("initial", nil)})

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket: чтение прервано", slog.String("error", err.Error()))
			}
			return
		case msg := <-incoming:
			wt.handle(ctx, msg)
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "лента изменений закрыта")
				return
			}
			if !watched[ev.Collection] {
				continue
			}
			// Пачка событий — одно перечитывание.
			drain(events)
			if err := h.Listing.Reload(ctx, sc.Name, sess); err != nil {
				wt.sendErr(ctx, "", err)
				continue
			}
			wt.send(ctx, ServerMessage{Type: msgView, Data: wt.view("change", &ev)})
		}
	}
}

func drain(ch <-chan docstore.Event) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// watcher — состояние одного WebSocket-соединения.
type watcher struct {
	h    *APIHandler
	conn *websocket.Conn
	sc   *screens.Screen
	sess *listing.Session
}

func (w *watcher) view(reason string, ev *docstore.Event) viewData {
	return viewData{
		pageResponse: newPageResponse(w.sc.Name, w.sess.View(), nil),
		Reason:       reason,
		Event:        ev,
	}
}

func (w *watcher) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case msgPing:
		w.send(ctx, ServerMessage{Type: msgPong, RequestID: msg.ID})

	case msgCriteria:
		var d criteriaData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			w.sendError(ctx, msg.ID, apierrors.CodeValidationError, "некорректные данные criteria")
			return
		}
		c, err := w.criteria(d)
		if err != nil {
			w.sendErr(ctx, msg.ID, err)
			return
		}
		w.sess.SetCriteria(c)
		w.send(ctx, ServerMessage{Type: msgView, RequestID: msg.ID, Data: w.view(msgCriteria, nil)})

	case msgPage:
		var d pageData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			w.sendError(ctx, msg.ID, apierrors.CodeValidationError, "некорректные данные page")
			return
		}
		w.sess.SetPage(d.Page)
		w.send(ctx, ServerMessage{Type: msgView, RequestID: msg.ID, Data: w.view(msgPage, nil)})

	case msgToggle, msgStatus:
		if us := model.SessionFrom(ctx); us == nil || !rbac.Allows(us.Role, rbac.ActionWrite) {
			w.sendError(ctx, msg.ID, apierrors.CodeForbidden, "Недостаточно прав")
			return
		}
		var d recordData
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.ID == "" {
			w.sendError(ctx, msg.ID, apierrors.CodeValidationError, "не указан id записи")
			return
		}
		var err error
		if msg.Type == msgToggle {
			_, err = w.h.Status.ToggleInSession(ctx, w.sc.Name, w.sess, d.ID)
		} else {
			err = w.h.Status.SetStatusInSession(ctx, w.sc.Name, w.sess, d.ID, d.Status)
		}
		if err != nil {
			// Сессия уже откатена к снимку.
			w.sendErr(ctx, msg.ID, err)
			w.send(ctx, ServerMessage{Type: msgView, RequestID: msg.ID, Data: w.view("rollback", nil)})
			return
		}
		w.send(ctx, ServerMessage{Type: msgView, RequestID: msg.ID, Data: w.view(msg.Type, nil)})

	default:
		w.sendError(ctx, msg.ID, codeUnknownType, "неизвестный тип сообщения: "+msg.Type)
	}
}

// criteria собирает и проверяет критерии из сообщения.
func (w *watcher) criteria(d criteriaData) (listing.Criteria, error) {
	q := map[string][]string{
		paramSearch: {d.Search},
		paramSort:   {d.Sort},
		paramDir:    {d.Dir},
		paramFrom:   {d.From},
		paramTo:     {d.To},
	}
	for k, v := range d.Filters {
		if !w.sc.HasFilter(k) {
			verr := &service.ValidationError{}
			verr.Add(k, "фильтр по полю не поддерживается")
			return listing.Criteria{}, verr
		}
		q[k] = []string{v}
	}
	c, err := criteriaFromQuery(w.sc, q)
	if err != nil {
		return listing.Criteria{}, err
	}
	return service.NormalizeCriteria(w.sc, c)
}

func (w *watcher) send(ctx context.Context, msg ServerMessage) {
	if err := wsjson.Write(ctx, w.conn, msg); err != nil {
		w.h.logger.Debug("WebSocket: ошибка записи", slog.String("error", err.Error()))
	}
}

func (w *watcher) sendError(ctx context.Context, requestID, code, message string) {
	w.send(ctx, ServerMessage{
		Type:      msgError,
		RequestID: requestID,
		Data:      apierrors.Detail{Code: code, Message: message},
	})
}

// sendErr переводит ошибку сервисного слоя в сообщение error
// с теми же кодами, что и HTTP-ответы.
func (w *watcher) sendErr(ctx context.Context, requestID string, err error) {
	d := apierrors.Describe(err)
	if d.Status >= http.StatusInternalServerError {
		w.h.logger.Error("WebSocket: ошибка обработки",
			slog.String("screen", w.sc.Name),
			slog.Bool("retryable", docstore.IsRetryable(err)),
			slog.String("error", err.Error()),
		)
	}
	w.send(ctx, ServerMessage{Type: msgError, RequestID: requestID, Data: d})
}
