package main

import (
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"genrep/internal/summary"
)

func (a *App) emitStatus(ready bool, message string) {
	runtime.EventsEmit(a.ctx, "replay:status", map[string]interface{}{
		"ready":   ready,
		"message": message,
	})
}

// emitLoaded sends a parsed replay to the viewer
func (a *App) emitLoaded(source string, report *summary.Report) {
	runtime.EventsEmit(a.ctx, "replay:loaded", map[string]interface{}{
		"source":  source,
		"matchId": report.MatchID,
		"result":  report.Result,
		"players": len(report.Players),
	})
}

func (a *App) emitError(source string, err error) {
	runtime.EventsEmit(a.ctx, "replay:error", map[string]interface{}{
		"source": source,
		"error":  err.Error(),
	})
}

func (a *App) emitRefresh(message string) {
	runtime.EventsEmit(a.ctx, "replay:refresh", map[string]interface{}{
		"message": message,
	})
}
