package history

import (
	"context"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"calcclient/internal/api"
	"calcclient/internal/models"
	"calcclient/internal/types"
)

const (
	DefaultPageSize = 10
	dateLayout      = "2006-01-02"
	statusAll       = "all"
)

// Requester выполнение запросов к сервису (api.Client)
type Requester interface {
	DoJSON(ctx context.Context, path string, opts api.Options, out any) error
}

type TokenSource interface {
	Token() string
}

// Filters необязательные фильтры истории; нулевые значения не отправляются
type Filters struct {
	DateFrom time.Time
	DateTo   time.Time
	Status   models.Status // "all" равносильно отсутствию фильтра
}

type Query struct {
	Page     int // с единицы
	PageSize int
	Filters  Filters
}

// Page одна страница истории. TotalCount может быть занижен,
// если сервис не сообщил общее число выражений.
type Page struct {
	Items      []models.Expression
	TotalCount int
	Page       int
	PageSize   int
}

func (p *Page) TotalPages() int {
	if p.PageSize <= 0 || p.TotalCount <= 0 {
		return 1
	}
	return (p.TotalCount + p.PageSize - 1) / p.PageSize
}

func (p *Page) HasNext() bool { return p.Page < p.TotalPages() }
func (p *Page) HasPrev() bool { return p.Page > 1 }

type Service struct {
	client Requester
	tokens TokenSource
}

func NewService(client Requester, tokens TokenSource) *Service {
	return &Service{client: client, tokens: tokens}
}

// Values строит строку запроса: offset/limit всегда, фильтры только заданные
func (q Query) Values() url.Values {
	q = q.normalize()
	values := url.Values{}
	values.Set("offset", strconv.Itoa((q.Page-1)*q.PageSize))
	values.Set("limit", strconv.Itoa(q.PageSize))
	if !q.Filters.DateFrom.IsZero() {
		values.Set("date_from", q.Filters.DateFrom.Format(dateLayout))
	}
	if !q.Filters.DateTo.IsZero() {
		values.Set("date_to", q.Filters.DateTo.Format(dateLayout))
	}
	status := strings.ToLower(strings.TrimSpace(string(q.Filters.Status)))
	if status != "" && status != statusAll {
		values.Set("status", status)
	}
	return values
}

func (q Query) normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	return q
}

// List загружает страницу истории выражений
func (s *Service) List(ctx context.Context, q Query) (*Page, error) {
	if s.tokens.Token() == "" {
		return nil, &api.RequestError{Kind: api.KindUnauthenticated, Message: "нет активной сессии"}
	}
	q = q.normalize()

	var resp types.ExpressionResponse
	if err := s.client.DoJSON(ctx, "/expressions?"+q.Values().Encode(), api.Options{}, &resp); err != nil {
		log.Printf("Ошибка при загрузке истории (страница %d): %v", q.Page, err)
		return nil, err
	}

	page := &Page{
		Items:    resp.Expressions,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if page.Items == nil {
		page.Items = []models.Expression{}
	}
	if resp.Total != nil {
		page.TotalCount = *resp.Total
	} else {
		page.TotalCount = len(page.Items)
	}
	return page, nil
}
