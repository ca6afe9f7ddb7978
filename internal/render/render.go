package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"calcclient/internal/history"
	"calcclient/internal/models"
)

var (
	ColorFgMuted = lipgloss.Color("#636B78")
	ColorRed     = lipgloss.Color("#E06C75")
	ColorGreen   = lipgloss.Color("#98C379")
	ColorYellow  = lipgloss.Color("#E5C07B")
	ColorBlue    = lipgloss.Color("#61AFEF")
	ColorBorder  = lipgloss.Color("#3F4451")
)

var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorBlue)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorFgMuted)
	ErrorStyle  = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	ResultStyle = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

var statusLabels = map[models.Status]string{
	models.StatusPending:    "В ожидании",
	models.StatusProcessing: "Вычисляется",
	models.StatusCompleted:  "Выполнено",
	models.StatusError:      "Ошибка",
}

var statusColors = map[models.Status]lipgloss.Color{
	models.StatusPending:    ColorFgMuted,
	models.StatusProcessing: ColorYellow,
	models.StatusCompleted:  ColorGreen,
	models.StatusError:      ColorRed,
}

// StatusLabel русское название статуса; неизвестный статус выводится как есть
func StatusLabel(s models.Status) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

func StatusBadge(s models.Status) string {
	color, ok := statusColors[s]
	if !ok {
		color = ColorFgMuted
	}
	return lipgloss.NewStyle().Foreground(color).Render(StatusLabel(s))
}

// Result текст результата или прочерк
func Result(expr *models.Expression) string {
	switch {
	case expr.Status == models.StatusError:
		return ErrorStyle.Render("ошибка")
	case expr.Result != nil:
		return ResultStyle.Render(expr.Result.String())
	}
	return MutedStyle.Render("-")
}

func Date(ts models.Timestamp) string {
	if ts.IsZero() {
		if ts.Raw != "" {
			return ts.Raw
		}
		return "-"
	}
	return ts.Format("02.01.2006 15:04:05")
}

// Expression подробности одного выражения
func Expression(expr *models.Expression) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", HeaderStyle.Render("Выражение"), expr.ID)
	fmt.Fprintf(&b, "  Текст:     %s\n", expr.Expression)
	fmt.Fprintf(&b, "  Статус:    %s\n", StatusBadge(expr.Status))
	fmt.Fprintf(&b, "  Результат: %s\n", Result(expr))
	fmt.Fprintf(&b, "  Создано:   %s\n", Date(expr.CreatedAt))
	return b.String()
}

// History таблица страницы истории с подвалом о номере страницы
func History(page *history.Page) string {
	if len(page.Items) == 0 {
		return MutedStyle.Render("История вычислений пуста") + "\n"
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorBorder)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Headers("ID", "Выражение", "Статус", "Результат", "Дата")

	for i := range page.Items {
		expr := &page.Items[i]
		t.Row(string(expr.ID), expr.Expression, StatusBadge(expr.Status), Result(expr), Date(expr.CreatedAt))
	}

	footer := fmt.Sprintf("Страница %d из %d, всего выражений: %d", page.Page, page.TotalPages(), page.TotalCount)
	return t.Render() + "\n" + MutedStyle.Render(footer) + "\n"
}

// Tasks таблица задач выражения
func Tasks(tasks []models.Task) string {
	if len(tasks) == 0 {
		return MutedStyle.Render("Задачи не найдены") + "\n"
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorBorder)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Headers("ID", "Операция", "Аргумент 1", "Аргумент 2", "Результат", "Статус", "Время")

	for _, task := range tasks {
		result := "-"
		if task.Result != nil {
			result = task.Result.String()
		}
		elapsed := "-"
		if d, ok := task.ExecutionDuration(); ok {
			elapsed = d.Round(time.Millisecond).String()
		}
		t.Row(string(task.ID), task.Operation, task.Arg1.String(), task.Arg2.String(), result, StatusBadge(task.Status), elapsed)
	}
	return t.Render() + "\n"
}
