// Package render форматирует ленту обновлений и сводку для терминала.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/wrongjunior/updaterelay/internal/domain"
	"github.com/wrongjunior/updaterelay/internal/service"
)

var typeColors = map[domain.UpdateType]lipgloss.Color{
	domain.TypeInfo:    lipgloss.Color("39"),
	domain.TypeSuccess: lipgloss.Color("42"),
	domain.TypeWarning: lipgloss.Color("214"),
	domain.TypeError:   lipgloss.Color("196"),
}

var typeLabels = map[domain.UpdateType]string{
	domain.TypeInfo:    "Info",
	domain.TypeSuccess: "Success",
	domain.TypeWarning: "Warning",
	domain.TypeError:   "Error",
}

// Renderer строит строки для вывода. Без цвета вывод пригоден для файлов и тестов.
type Renderer struct {
	color bool
	loc   *time.Location
}

// New создаёт Renderer. color включает ANSI-стили.
func New(color bool) *Renderer {
	return &Renderer{color: color, loc: time.Local}
}

// WithLocation задаёт часовой пояс для отображения времени.
func (r *Renderer) WithLocation(loc *time.Location) *Renderer {
	r.loc = loc
	return r
}

func (r *Renderer) style(t domain.UpdateType) lipgloss.Style {
	s := lipgloss.NewStyle()
	if !r.color {
		return s
	}
	if c, ok := typeColors[t]; ok {
		return s.Foreground(c).Bold(true)
	}
	return s.Foreground(typeColors[domain.TypeInfo]).Bold(true)
}

// Update форматирует одно обновление строкой.
func (r *Renderer) Update(u domain.Update) string {
	typ := u.Type
	if typ == "" {
		typ = domain.TypeInfo
	}
	tag := r.style(typ).Render(fmt.Sprintf("[%-7s]", typ))
	return fmt.Sprintf("%s %s %s: %s",
		u.Timestamp.In(r.loc).Format("2006-01-02 15:04:05"), tag, u.Title, u.Message)
}

// Dashboard форматирует сводку: последнее обновление и распределение по категориям.
func (r *Renderer) Dashboard(stats service.FeedStats) string {
	var b strings.Builder
	b.WriteString("Dashboard Overview\n")
	if stats.Latest != nil {
		fmt.Fprintf(&b, "Latest: %s\n", r.Update(*stats.Latest))
	}
	for _, t := range domain.Types() {
		st := stats.ByType[t]
		label := r.style(t).Render(fmt.Sprintf("%-8s", typeLabels[t]))
		fmt.Fprintf(&b, "  %s %3d  %3d%%\n", label, st.Count, st.Percentage)
	}
	fmt.Fprintf(&b, "  Total    %3d\n", stats.Total)
	return b.String()
}

// Feed форматирует ленту, новые обновления первыми. При limit <= 0 ограничения нет.
func (r *Renderer) Feed(updates []domain.Update, limit int) string {
	if len(updates) == 0 {
		return "No updates yet\n"
	}
	if limit > 0 && len(updates) > limit {
		updates = updates[:limit]
	}
	var b strings.Builder
	for _, u := range updates {
		b.WriteString(r.Update(u))
		b.WriteByte('\n')
	}
	return b.String()
}
