// Copyright 2024-2026 Aiku AI

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// errorMarkerKey is the content key that marks a notice as a failure artifact.
const errorMarkerKey = "fi.mau.mattermost.error"

// failure describes the event a guarded handler was working on.
type failure struct {
	Source EventSource
	Kind   EventKind
	RoomID id.RoomID

	payload func() (json.RawMessage, error)
}

// failureMarker is stored under errorMarkerKey in failure artifacts.
type failureMarker struct {
	Source  EventSource     `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

// PanicError is the error a guarded handler produces when it panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (pe *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", pe.Value)
}

func (pe *PanicError) Unwrap() error {
	err, _ := pe.Value.(error)
	return err
}

// guard runs fn and turns errors and panics into log entries and, subject to
// the cooldown, a failure artifact in the affected room.
func (d *Dispatcher) guard(ctx context.Context, f *failure, fn func(ctx context.Context) error) {
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = &PanicError{Value: p, Stack: debug.Stack()}
			}
		}()
		return fn(ctx)
	}()
	if err == nil {
		return
	}
	payload, marshalErr := f.payload()
	if marshalErr != nil {
		zerolog.Ctx(ctx).Warn().Err(marshalErr).Msg("Failed to serialize event payload for error report")
		payload = json.RawMessage("null")
	}
	logEvt := zerolog.Ctx(ctx).Error().Err(err).RawJSON("payload", payload)
	var pe *PanicError
	if errors.As(err, &pe) {
		logEvt = logEvt.Bytes("stack", pe.Stack)
	}
	logEvt.Msg("Failed to handle event")

	d.reportFailure(ctx, f, payload, err)
}

func (d *Dispatcher) reportFailure(ctx context.Context, f *failure, payload json.RawMessage, handlerErr error) {
	log := zerolog.Ctx(ctx)
	if f.RoomID == "" {
		log.Debug().Msg("No room to report failure into")
		return
	}
	if !d.reportLimit.Allow() {
		log.Debug().Msg("Not sending error report, cooldown active")
		return
	}
	content := buildFailureArtifact(f, payload, handlerErr)
	artifactID, err := d.mc.Matrix.SendMessage(ctx, f.RoomID, "", event.EventMessage, content)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to send error report")
		return
	}
	_, err = d.mc.Matrix.SendReaction(ctx, f.RoomID, "", artifactID, d.mc.Config.Bridge.RetryKey)
	if err != nil {
		log.Warn().Err(err).Stringer("artifact_id", artifactID).Msg("Failed to add retry reaction to error report")
	}
}

func buildFailureArtifact(f *failure, payload json.RawMessage, handlerErr error) map[string]any {
	summary := fmt.Sprintf("Failed to bridge %s event from %s: %v", f.Kind, f.Source, handlerErr)

	var formatted strings.Builder
	formatted.WriteString("<p>")
	formatted.WriteString(html.EscapeString(summary))
	formatted.WriteString("</p>")
	writeDetails(&formatted, "Error", strings.Join(errorChain(handlerErr), "\n"))
	var pe *PanicError
	if errors.As(handlerErr, &pe) {
		writeDetails(&formatted, "Stack trace", string(pe.Stack))
	}
	var indented bytes.Buffer
	if json.Indent(&indented, payload, "", "  ") == nil {
		writeDetails(&formatted, "Event", indented.String())
	} else {
		writeDetails(&formatted, "Event", string(payload))
	}

	return map[string]any{
		"msgtype":        event.MsgNotice,
		"body":           summary,
		"format":         event.FormatHTML,
		"formatted_body": formatted.String(),
		errorMarkerKey: &failureMarker{
			Source:  f.Source,
			Payload: payload,
		},
	}
}

func writeDetails(sb *strings.Builder, summary, body string) {
	sb.WriteString("<details><summary>")
	sb.WriteString(html.EscapeString(summary))
	sb.WriteString("</summary><pre><code>")
	sb.WriteString(html.EscapeString(body))
	sb.WriteString("</code></pre></details>")
}

// errorChain flattens err into one line per wrapped cause. Mattermost API
// errors additionally get one line per property.
func errorChain(err error) []string {
	var lines []string
	var walk func(err error, depth int)
	walk = func(err error, depth int) {
		indent := strings.Repeat("  ", depth)
		lines = append(lines, indent+err.Error())
		if appErr, ok := err.(*model.AppError); ok {
			lines = append(lines, appErrorLines(appErr, indent+"  ")...)
		}
		switch wrapped := err.(type) {
		case interface{ Unwrap() []error }:
			for _, sub := range wrapped.Unwrap() {
				if sub != nil {
					walk(sub, depth+1)
				}
			}
		case interface{ Unwrap() error }:
			if sub := wrapped.Unwrap(); sub != nil {
				walk(sub, depth+1)
			}
		}
	}
	walk(err, 0)
	return lines
}

func appErrorLines(appErr *model.AppError, indent string) []string {
	lines := []string{
		indent + "id: " + appErr.Id,
		indent + "message: " + appErr.Message,
		indent + "status_code: " + strconv.Itoa(appErr.StatusCode),
	}
	if appErr.DetailedError != "" {
		lines = append(lines, indent+"detailed_error: "+appErr.DetailedError)
	}
	if appErr.Where != "" {
		lines = append(lines, indent+"where: "+appErr.Where)
	}
	if appErr.RequestId != "" {
		lines = append(lines, indent+"request_id: "+appErr.RequestId)
	}
	return lines
}
