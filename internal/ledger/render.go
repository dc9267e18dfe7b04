package ledger

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	addedStyle   = lipgloss.NewStyle().Background(lipgloss.Color("#008000"))
	removedStyle = lipgloss.NewStyle().Background(lipgloss.Color("#DB7093"))
)

// Render 渲染自上次渲染以来的变更视图，并重置变更状态。
// diff 模式下渲染后丢弃快照。
func (l *Ledger) Render() string {
	if len(l.turns) == 0 && len(l.snapshot) == 0 {
		l.snapshot = nil
		return l.name + "(empty)"
	}

	w := &viewWriter{color: l.color}
	w.line(l.name+":", nil)

	if !l.diffMode {
		for i, t := range l.turns {
			w.context(i, t)
		}
	} else {
		view := l.turns
		if l.snapshot != nil {
			view = l.snapshot
		}
		for i, t := range view {
			switch t.state {
			case Added:
				w.whole(i, t, '+', &addedStyle)
			case Removed:
				w.whole(i, t, '-', &removedStyle)
			case Replaced:
				w.replaced(i, t)
			default:
				w.context(i, t)
			}
			t.state = Unchanged
			t.PreviousContent = ""
		}
		l.snapshot = nil
	}

	c := l.Counts()
	w.line(fmt.Sprintf("total=%d human=%d assistant=%d system=%d summary=%d",
		c.Total, c.Human, c.Assistant, c.System, c.Summary), nil)
	return strings.TrimSuffix(w.b.String(), "\n")
}

type viewWriter struct {
	b     strings.Builder
	color bool
}

func (w *viewWriter) line(s string, style *lipgloss.Style) {
	if w.color && style != nil {
		s = style.Render(s)
	}
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

func (w *viewWriter) header(i int, t *Turn, style *lipgloss.Style) {
	w.line(fmt.Sprintf("%d: %s(", i, t.Role), style)
}

func (w *viewWriter) context(i int, t *Turn) {
	w.header(i, t, nil)
	for row, s := range splitLines(t.Content) {
		w.line(fmt.Sprintf(" %d: %s", row+1, s), nil)
	}
	w.line(")", nil)
}

// whole 整条消息新增或删除
func (w *viewWriter) whole(i int, t *Turn, marker byte, style *lipgloss.Style) {
	w.header(i, t, style)
	for row, s := range splitLines(t.Content) {
		w.line(fmt.Sprintf("%c%d: %s", marker, row+1, s), style)
	}
	w.line(")", style)
}

// replaced 按位置对齐新旧行（短的一侧补空行），连续的变更行先输出删除块再输出新增块
func (w *viewWriter) replaced(i int, t *Turn) {
	oldLines, newLines := padLines(splitLines(t.PreviousContent), splitLines(t.Content))

	w.header(i, t, nil)
	var removed, added []string
	flush := func() {
		for _, s := range removed {
			w.line(s, &removedStyle)
		}
		for _, s := range added {
			w.line(s, &addedStyle)
		}
		removed, added = removed[:0], added[:0]
	}
	for row := range oldLines {
		o, n := oldLines[row], newLines[row]
		if o == n {
			flush()
			w.line(fmt.Sprintf(" %d: %s", row+1, n), nil)
			continue
		}
		if o != "" {
			removed = append(removed, fmt.Sprintf("-%d: %s", row+1, o))
		}
		if n != "" {
			added = append(added, fmt.Sprintf("+%d: %s", row+1, n))
		}
	}
	flush()
	w.line(")", nil)
}

func padLines(oldLines, newLines []string) ([]string, []string) {
	for len(oldLines) < len(newLines) {
		oldLines = append(oldLines, "")
	}
	for len(newLines) < len(oldLines) {
		newLines = append(newLines, "")
	}
	return oldLines, newLines
}

// splitLines 按行切分，末尾换行不产生空行，空串返回 nil
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
