//go:build js && wasm

// GoCard WASM — In-browser card compositor.
// Compiled with: GOOS=js GOARCH=wasm go build -o gocard.wasm ./clients/wasm/
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"syscall/js"

	"github.com/xob0t/GoCard/internal/config"
	"github.com/xob0t/GoCard/internal/logger"
	"github.com/xob0t/GoCard/pkg/compositor"
	"github.com/xob0t/GoCard/pkg/generator"
)

var (
	mu       sync.Mutex
	services compositor.Services
	session  *compositor.Session
	unsub    func()

	cfg = config.Defaults()
	log *slog.Logger
)

func main() {
	// The browser console shows stdout; keep it to warnings.
	cfg.Logger.Output, cfg.Logger.Level = "stdout", "warn"
	l, _, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Println("GoCard WASM: " + err.Error())
		return
	}
	log = l

	fonts, err := compositor.NewFontService(compositor.FontOptions{Logger: log})
	if err != nil {
		fmt.Println("GoCard WASM: " + err.Error())
		return
	}
	// No fonts directory in the browser: only embedded and registered faces.
	fonts.Load(context.Background())

	renderer := compositor.NewRenderer(fonts, compositor.RendererOptions{
		FontWait:       cfg.Compositor.FontTimeout,
		PreviewMaxSide: cfg.Compositor.PreviewMaxSide,
		Logger:         log,
	})
	services = compositor.Services{
		// Remote templates go through the browser's fetch.
		Fetcher: compositor.NewFetcher(compositor.FetcherOptions{
			Timeout:         cfg.Remote.Timeout,
			MaxFailures:     cfg.Remote.MaxFailures,
			BreakerTimeout:  cfg.Remote.BreakerTimeout,
			BreakerInterval: cfg.Remote.BreakerInterval,
			Logger:          log,
		}),
		Renderer: renderer,
		Exporter: compositor.NewExporter(renderer, cfg.Compositor.ExportPrefix),
	}

	fmt.Println("GoCard WASM loaded")

	// Register JS-callable functions.
	js.Global().Set("goNewSession", js.FuncOf(newSession))
	js.Global().Set("goLoadTemplate", js.FuncOf(loadTemplate))
	js.Global().Set("goSelectTemplate", js.FuncOf(selectTemplate))
	js.Global().Set("goBlank", js.FuncOf(blank))
	js.Global().Set("goRegisterFont", js.FuncOf(registerFont))
	js.Global().Set("goSetStyle", js.FuncOf(setStyle))
	js.Global().Set("goApplyPreset", js.FuncOf(applyPreset))
	js.Global().Set("goReset", js.FuncOf(reset))
	js.Global().Set("goUndo", js.FuncOf(undo))
	js.Global().Set("goPointer", js.FuncOf(pointer))
	js.Global().Set("goZoom", js.FuncOf(zoom))
	js.Global().Set("goSetDisplay", js.FuncOf(setDisplay))
	js.Global().Set("goOnPreview", js.FuncOf(onPreview))
	js.Global().Set("goView", js.FuncOf(view))
	js.Global().Set("goExport", js.FuncOf(exportCard))
	js.Global().Set("goShareLink", js.FuncOf(shareLink))
	js.Global().Set("goReady", js.ValueOf(true))

	// Block forever (WASM must not exit).
	select {}
}

func errorValue(err error) js.Value {
	return js.ValueOf("error: " + err.Error())
}

func jsonValue(v any) js.Value {
	data, err := json.Marshal(v)
	if err != nil {
		return errorValue(err)
	}
	return js.ValueOf(string(data))
}

// current returns the active session or an error string for JS.
func current() (*compositor.Session, js.Value, bool) {
	mu.Lock()
	defer mu.Unlock()
	if session == nil {
		return nil, js.ValueOf("error: no session; call goNewSession first"), false
	}
	return session, js.Undefined(), true
}

// withSession runs fn and returns the session view as JSON.
func withSession(fn func(s *compositor.Session) error) js.Value {
	s, errVal, ok := current()
	if !ok {
		return errVal
	}
	if err := fn(s); err != nil {
		return errorValue(err)
	}
	return jsonValue(s.View())
}

// goNewSession(occasion) — replace the active session.
func newSession(this js.Value, args []js.Value) interface{} {
	occasion := "ramadan"
	if len(args) > 0 && args[0].String() != "" {
		occasion = args[0].String()
	}
	profile, ok := compositor.Profiles()[occasion]
	if !ok {
		profile = compositor.RamadanProfile()
	}

	s, err := compositor.NewSession(services, compositor.SessionOptions{
		Profile:      profile,
		HistoryDepth: cfg.Compositor.HistoryDepth,
		Debounce:     cfg.Compositor.Debounce,
		Zoom:         compositor.ZoomRange{Min: cfg.Compositor.ZoomMin, Max: cfg.Compositor.ZoomMax, Step: cfg.Compositor.ZoomStep},
		Logger:       log,
	})
	if err != nil {
		return errorValue(err)
	}

	mu.Lock()
	if session != nil {
		session.Close()
	}
	session, unsub = s, nil
	mu.Unlock()
	return jsonValue(s.View())
}

// goLoadTemplate(name, base64Data) — decode a template held in JS memory.
func loadTemplate(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("error: need name, base64Data")
	}
	data, err := base64.StdEncoding.DecodeString(args[1].String())
	if err != nil {
		return js.ValueOf("error: invalid base64: " + err.Error())
	}
	return withSession(func(s *compositor.Session) error {
		tmpl, err := compositor.DecodeTemplate(args[0].String(), data)
		if err != nil {
			return err
		}
		return s.UseTemplate(tmpl)
	})
}

// goSelectTemplate(url, callback) — fetch a template in the background.
// callback(err) gets "" on success; a superseded selection never calls it.
func selectTemplate(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("error: need url")
	}
	cb := js.Undefined()
	if len(args) > 1 && args[1].Type() == js.TypeFunction {
		cb = args[1]
	}
	s, errVal, ok := current()
	if !ok {
		return errVal
	}
	// Blocking on fetch inside a JS callback would deadlock the event loop.
	s.SelectTemplateAsync(context.Background(), args[0].String(), func(err error) {
		if cb.IsUndefined() {
			return
		}
		if err != nil {
			cb.Invoke(err.Error())
			return
		}
		cb.Invoke("")
	})
	return js.ValueOf("ok")
}

// goBlank(width, height, color) — base64 PNG of a solid placeholder card.
func blank(this js.Value, args []js.Value) interface{} {
	var card generator.Config
	if len(args) >= 2 {
		card.Width, card.Height = args[0].Int(), args[1].Int()
	}
	if len(args) >= 3 {
		card.Color = args[2].String()
	}
	var buf bytes.Buffer
	if err := generator.GenerateToWriter(&buf, ".png", card); err != nil {
		return errorValue(err)
	}
	return js.ValueOf(base64.StdEncoding.EncodeToString(buf.Bytes()))
}

// goRegisterFont(family, weight, slant, base64Data) — add an uploaded face.
func registerFont(this js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return js.ValueOf("error: need family, weight, slant, base64Data")
	}
	data, err := base64.StdEncoding.DecodeString(args[3].String())
	if err != nil {
		return js.ValueOf("error: invalid base64: " + err.Error())
	}
	w, sl := compositor.Weight(args[1].String()), compositor.Slant(args[2].String())
	if err := services.Renderer.Fonts().Register(args[0].String(), w, sl, data); err != nil {
		return errorValue(err)
	}
	if s, _, ok := current(); ok {
		s.Refresh()
	}
	return js.ValueOf("ok")
}

// goSetStyle(patchJSON) — e.g. {"text":"Aisha","color":"#ff0000"}.
func setStyle(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("error: need patchJSON")
	}
	var p compositor.StylePatch
	if err := json.Unmarshal([]byte(args[0].String()), &p); err != nil {
		return js.ValueOf("error: parse patch: " + err.Error())
	}
	return withSession(func(s *compositor.Session) error { return s.Patch(p) })
}

// goApplyPreset(name)
func applyPreset(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("error: need name")
	}
	return withSession(func(s *compositor.Session) error { return s.ApplyPreset(args[0].String()) })
}

// goReset()
func reset(this js.Value, args []js.Value) interface{} {
	return withSession(func(s *compositor.Session) error { return s.Reset() })
}

// goUndo()
func undo(this js.Value, args []js.Value) interface{} {
	return withSession(func(s *compositor.Session) error {
		_, err := s.Undo()
		return err
	})
}

// goPointer(action, x, y, left, top, width, height) — action is down,
// move, up or click; coordinates are client pixels.
func pointer(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("error: need action")
	}
	action := args[0].String()
	if action == "up" {
		return withSession(func(s *compositor.Session) error {
			s.PointerUp()
			return nil
		})
	}
	if len(args) < 7 {
		return js.ValueOf("error: need action, x, y, left, top, width, height")
	}
	x, y := args[1].Float(), args[2].Float()
	rect := compositor.Rect{Left: args[3].Float(), Top: args[4].Float(), Width: args[5].Float(), Height: args[6].Float()}

	return withSession(func(s *compositor.Session) error {
		switch action {
		case "down":
			return s.PointerDown(x, y, rect)
		case "move":
			_, err := s.PointerMove(x, y, rect)
			return err
		case "click":
			return s.Click(x, y, rect)
		}
		return fmt.Errorf("unknown pointer action %q", action)
	})
}

// goZoom(action, value) — action is in, out or set. Returns the new zoom.
func zoom(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("error: need action")
	}
	s, errVal, ok := current()
	if !ok {
		return errVal
	}
	switch args[0].String() {
	case "in":
		return js.ValueOf(s.ZoomIn())
	case "out":
		return js.ValueOf(s.ZoomOut())
	case "set":
		if len(args) < 2 {
			return js.ValueOf("error: need value")
		}
		return js.ValueOf(s.SetZoom(args[1].Float()))
	}
	return js.ValueOf("error: unknown zoom action " + args[0].String())
}

// goSetDisplay(width, height) — size of the preview surface in CSS pixels.
func setDisplay(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("error: need width, height")
	}
	return withSession(func(s *compositor.Session) error { return s.SetDisplay(args[0].Int(), args[1].Int()) })
}

// goOnPreview(callback) — callback(base64PNG, seq, zoom) runs for every
// settled preview of the active session.
func onPreview(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeFunction {
		return js.ValueOf("error: need callback")
	}
	cb := args[0]
	s, errVal, ok := current()
	if !ok {
		return errVal
	}

	stop := s.OnPreview(func(p compositor.Preview) {
		data, err := generator.PNGBytes(p.Image)
		if err != nil {
			log.Warn("encode preview", "error", err)
			return
		}
		cb.Invoke(base64.StdEncoding.EncodeToString(data), float64(p.Seq), p.Zoom)
	})

	mu.Lock()
	if unsub != nil {
		unsub()
	}
	unsub = stop
	mu.Unlock()

	s.Refresh()
	return js.ValueOf("ok")
}

// goView() — session state as JSON.
func view(this js.Value, args []js.Value) interface{} {
	return withSession(func(*compositor.Session) error { return nil })
}

// goExport() — JSON {name, width, height, data} with base64 PNG data.
func exportCard(this js.Value, args []js.Value) interface{} {
	s, errVal, ok := current()
	if !ok {
		return errVal
	}
	a, err := s.Export(context.Background(), nil)
	if err != nil {
		return errorValue(err)
	}
	return jsonValue(map[string]any{
		"name":   a.Name,
		"width":  a.Width,
		"height": a.Height,
		"data":   a.Data,
	})
}

// goShareLink() — JSON {url, qrCode} for browsers without file sharing.
func shareLink(this js.Value, args []js.Value) interface{} {
	s, errVal, ok := current()
	if !ok {
		return errVal
	}
	sink := &compositor.ShareSink{
		BaseURL: cfg.Compositor.ShareBaseURL,
		Message: cfg.Compositor.ShareMessage,
	}
	if _, err := s.Export(context.Background(), sink); err != nil {
		return errorValue(err)
	}
	return jsonValue(sink.Link())
}
