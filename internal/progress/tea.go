package progress

import (
	"context"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type tickMsg struct{}
type stopMsg struct{}

type uploadTeaModel struct {
	viewFn      func() UploadView
	onInterrupt func()
	view        UploadView
}

func (m uploadTeaModel) Init() tea.Cmd {
	return nil
}

func (m uploadTeaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
			return m, nil
		}
	case tickMsg:
		m.view = m.viewFn()
		return m, nil
	case stopMsg:
		m.view = m.viewFn()
		return m, tea.Quit
	}
	return m, nil
}

func (m uploadTeaModel) View() string {
	return renderUploadTTY(m.view) + "\n"
}

func renderUploadTea(ctx context.Context, w io.Writer, view func() UploadView, onInterrupt func()) func() {
	model := uploadTeaModel{viewFn: view, onInterrupt: onInterrupt, view: view()}
	program := tea.NewProgram(model, tea.WithOutput(w), tea.WithContext(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = program.Run()
	}()
	ticker := time.NewTicker(250 * time.Millisecond)
	stop := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				program.Send(tickMsg{})
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			program.Send(stopMsg{})
			<-done
		})
	}
}
