package sync

import (
	"context"

	"github.com/looplab/fsm"
)

const (
	eventUpload   = "upload"
	eventDownload = "download"
	eventResolve  = "resolve"
	eventFinish   = "finish"
	eventFail     = "fail"
)

// newMachine описывает допустимые переходы одного прогона:
// idle -> uploading -> downloading -> resolving -> idle, fail из любой фазы в idle.
func newMachine(onEnter func(ctx context.Context, phase string)) *fsm.FSM {
	return fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: eventUpload, Src: []string{PhaseIdle}, Dst: PhaseUploading},
			{Name: eventDownload, Src: []string{PhaseUploading}, Dst: PhaseDownloading},
			{Name: eventResolve, Src: []string{PhaseDownloading}, Dst: PhaseResolving},
			{Name: eventFinish, Src: []string{PhaseResolving}, Dst: PhaseIdle},
			{Name: eventFail, Src: []string{PhaseUploading, PhaseDownloading, PhaseResolving}, Dst: PhaseIdle},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				onEnter(ctx, e.Dst)
			},
		},
	)
}

func (s *Service) transition(ctx context.Context, event string) {
	// отмена ctx не должна оставлять машину в промежуточной фазе
	if err := s.machine.Event(context.WithoutCancel(ctx), event); err != nil {
		s.log.Error("invalid sync phase transition", "event", event, "phase", s.machine.Current(), "error", err)
	}
}
