package ui

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"

	"gioui.org/app"
	"gioui.org/gesture"
	"gioui.org/io/pointer"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"go.uber.org/zap"
	"golang.org/x/exp/shiny/materialdesign/icons"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/session"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene/render"
)

type navEntry struct {
	view  circuit.View
	name  string
	icon  *widget.Icon
	click widget.Clickable
}

type toolButton struct {
	name   string
	icon   *widget.Icon
	click  widget.Clickable
	action func(context.Context)
}

// App drives the Gio-based circuit editor.
type App struct {
	Window  *app.Window
	Theme   *material.Theme
	State   *AppState
	Session *session.Session
	Editor  *Editor

	ops     op.Ops
	painter *render.Painter
	chrome  chrome
	logger  *zap.Logger

	navEntries []navEntry
	tools      []*toolButton

	paletteList   layout.List
	detailsList   layout.List
	logList       layout.List
	paletteClicks map[string]*widget.Clickable
	palette       []catalog.Definition

	toggleLeftPanelBtn  widget.Clickable
	toggleRightPanelBtn widget.Clickable

	canvasTag struct{}

	logPaneHeight float32
	logSplitter   gesture.Drag
	logSplitLastY float32
	logSplitDrag  bool
}

// New wires the Gio window, theme, session and shared state together.
func New(window *app.Window, sess *session.Session, state *AppState) *App {
	if state == nil {
		state = NewState()
	}
	canvasTheme, ok := render.ThemeByName(sess.Config.UI.Theme)
	if !ok {
		canvasTheme = render.DefaultTheme()
	}
	colors := chromeFor(canvasTheme)
	baseTheme := material.NewTheme()
	baseTheme.Palette = colors.palette()
	a := &App{
		Window:        window,
		Theme:         baseTheme,
		State:         state,
		Session:       sess,
		Editor:        NewEditor(sess, state),
		painter:       render.NewPainter(canvasTheme),
		chrome:        colors,
		logger:        sess.Logger.Named("ui"),
		paletteList:   layout.List{Axis: layout.Vertical},
		detailsList:   layout.List{Axis: layout.Vertical},
		logList:       layout.List{Axis: layout.Vertical, ScrollToEnd: true},
		paletteClicks: make(map[string]*widget.Clickable),
		palette:       sess.Catalog.List(),
	}
	a.initNavigation()
	return a
}

// Run processes Gio events until the window is closed.
func (a *App) Run() error {
	for {
		e := a.Window.Event()
		switch ev := e.(type) {
		case app.DestroyEvent:
			return ev.Err
		case app.FrameEvent:
			gtx := app.NewContext(&a.ops, ev)
			a.layout(gtx)
			ev.Frame(gtx.Ops)
		}
	}
}

func (a *App) initNavigation() {
	makeIcon := func(data []byte, name string) *widget.Icon {
		icon, err := widget.NewIcon(data)
		if err != nil {
			a.logger.Warn("failed to load icon", zap.String("icon", name), zap.Error(err))
			return nil
		}
		return icon
	}
	a.navEntries = []navEntry{
		{view: circuit.ViewSchematic, name: "Schematic", icon: makeIcon(icons.ActionSettingsInputComponent, "schematic")},
		{view: circuit.ViewBoard, name: "Board", icon: makeIcon(icons.HardwareDeveloperBoard, "board")},
	}
	a.tools = []*toolButton{
		{name: "Wire (W)", icon: makeIcon(icons.ActionTimeline, "wire"), action: func(context.Context) { a.Editor.ToggleWire() }},
		{name: "Undo", icon: makeIcon(icons.ContentUndo, "undo"), action: a.Editor.Undo},
		{name: "Redo", icon: makeIcon(icons.ContentRedo, "redo"), action: a.Editor.Redo},
		{name: "Save", icon: makeIcon(icons.ContentSave, "save"), action: a.Editor.Save},
		{name: "Check", icon: makeIcon(icons.ActionCheckCircle, "check"), action: a.Editor.Validate},
		{name: "Fit (F)", icon: makeIcon(icons.NavigationFullscreen, "fit"), action: func(context.Context) { a.Editor.Fit() }},
	}
}

func (a *App) layout(gtx layout.Context) layout.Dimensions {
	state := a.State.Snapshot()

	paint.FillShape(gtx.Ops, a.chrome.Window, clip.Rect{Max: gtx.Constraints.Max}.Op())

	return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			width := gtx.Dp(unit.Dp(150))
			gtx.Constraints.Min.X = width
			gtx.Constraints.Max.X = width
			return a.layoutNavigation(gtx, state)
		}),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					return a.layoutTopBar(gtx, &state)
				}),
				layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
					return a.layoutMainPanels(gtx, state)
				}),
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					return a.layoutStatus(gtx, state)
				}),
			)
		}),
	)
}

func (a *App) layoutNavigation(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	return layout.Stack{}.Layout(gtx,
		layout.Expanded(func(gtx layout.Context) layout.Dimensions {
			paint.FillShape(gtx.Ops, a.chrome.Nav, clip.Rect{Max: gtx.Constraints.Max}.Op())
			return layout.Dimensions{Size: gtx.Constraints.Max}
		}),
		layout.Stacked(func(gtx layout.Context) layout.Dimensions {
			return layout.Inset{Top: unit.Dp(24), Bottom: unit.Dp(24), Left: unit.Dp(8), Right: unit.Dp(8)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
				children := make([]layout.FlexChild, 0, len(a.navEntries)*2)
				for i := range a.navEntries {
					entry := &a.navEntries[i]
					children = append(children, layout.Rigid(func(gtx layout.Context) layout.Dimensions {
						return a.layoutNavEntry(gtx, entry, state.View == entry.view)
					}))
					children = append(children, layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout))
				}
				return layout.Flex{Axis: layout.Vertical}.Layout(gtx, children...)
			})
		}),
	)
}

func (a *App) layoutNavEntry(gtx layout.Context, entry *navEntry, selected bool) layout.Dimensions {
	for entry.click.Clicked(gtx) {
		a.Editor.SetView(entry.view)
		a.invalidate()
	}

	width := gtx.Constraints.Max.X
	if width <= 0 {
		width = gtx.Dp(unit.Dp(140))
	}
	size := image.Pt(width, gtx.Dp(unit.Dp(52)))
	gtx.Constraints.Min = size
	gtx.Constraints.Max = size

	bg := a.chrome.Nav
	if entry.click.Hovered() {
		bg = a.chrome.NavHover
	}
	if selected {
		bg = a.chrome.Accent(entry.view)
	}
	textColor := a.chrome.NavText

	return entry.click.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Stack{}.Layout(gtx,
			layout.Expanded(func(gtx layout.Context) layout.Dimensions {
				rect := image.Rectangle{Max: size}.Inset(gtx.Dp(unit.Dp(2)))
				rr := gtx.Dp(unit.Dp(8))
				paint.FillShape(gtx.Ops, bg, clip.RRect{Rect: rect, NW: rr, NE: rr, SW: rr, SE: rr}.Op(gtx.Ops))
				return layout.Dimensions{Size: rect.Size()}
			}),
			layout.Stacked(func(gtx layout.Context) layout.Dimensions {
				return layout.Inset{Top: unit.Dp(6), Bottom: unit.Dp(6), Left: unit.Dp(8), Right: unit.Dp(8)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
					return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
						layout.Rigid(func(gtx layout.Context) layout.Dimensions {
							s := gtx.Dp(unit.Dp(28))
							gtx.Constraints.Min = image.Pt(s, s)
							gtx.Constraints.Max = gtx.Constraints.Min
							if entry.icon != nil {
								return entry.icon.Layout(gtx, textColor)
							}
							return layout.Dimensions{Size: image.Pt(s, s)}
						}),
						layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
						layout.Rigid(func(gtx layout.Context) layout.Dimensions {
							lbl := material.Body2(a.Theme, entry.name)
							lbl.Color = textColor
							lbl.Alignment = text.Start
							return lbl.Layout(gtx)
						}),
					)
				})
			}),
		)
	})
}

func (a *App) layoutTopBar(gtx layout.Context, state *StateSnapshot) layout.Dimensions {
	ctx := context.Background()
	return layout.Inset{
		Top: unit.Dp(12), Bottom: unit.Dp(4), Left: unit.Dp(16), Right: unit.Dp(16),
	}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		children := []layout.FlexChild{
			layout.Rigid(material.H6(a.Theme, "Circuit Editor").Layout),
			layout.Rigid(layout.Spacer{Width: unit.Dp(16)}.Layout),
		}
		for _, tool := range a.tools {
			tool := tool
			children = append(children,
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					for tool.click.Clicked(gtx) {
						tool.action(ctx)
						a.invalidate()
					}
					if tool.icon == nil {
						return material.Button(a.Theme, &tool.click, tool.name).Layout(gtx)
					}
					btn := material.IconButton(a.Theme, &tool.click, tool.icon, tool.name)
					btn.Size = unit.Dp(20)
					btn.Inset = layout.UniformInset(unit.Dp(6))
					if tool.name == "Wire (W)" && state.Mode == ModeWire {
						btn.Background = a.chrome.Accent(circuit.ViewSchematic)
					}
					return btn.Layout(gtx)
				}),
				layout.Rigid(layout.Spacer{Width: unit.Dp(4)}.Layout),
			)
		}
		children = append(children,
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions { return layout.Dimensions{} }),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				for a.toggleLeftPanelBtn.Clicked(gtx) {
					state.LeftPanelVisible = !state.LeftPanelVisible
					a.State.SetLeftPanelVisible(state.LeftPanelVisible)
					a.invalidate()
				}
				label := "Hide Parts"
				if !state.LeftPanelVisible {
					label = "Show Parts"
				}
				btn := material.Button(a.Theme, &a.toggleLeftPanelBtn, label)
				btn.Inset = layout.UniformInset(unit.Dp(6))
				return btn.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				for a.toggleRightPanelBtn.Clicked(gtx) {
					state.RightPanelVisible = !state.RightPanelVisible
					a.State.SetRightPanelVisible(state.RightPanelVisible)
					a.invalidate()
				}
				label := "Hide Details"
				if !state.RightPanelVisible {
					label = "Show Details"
				}
				btn := material.Button(a.Theme, &a.toggleRightPanelBtn, label)
				btn.Inset = layout.UniformInset(unit.Dp(6))
				return btn.Layout(gtx)
			}),
		)
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx, children...)
	})
}

func (a *App) layoutMainPanels(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return a.layoutWorkspace(gtx, state)
		}),
		layout.Rigid(a.layoutLogSplitter),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return a.layoutLogPane(gtx, state)
		}),
	)
}

func (a *App) layoutWorkspace(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	children := make([]layout.FlexChild, 0, 3)
	if state.LeftPanelVisible {
		children = append(children, layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			width := gtx.Dp(unit.Dp(220))
			gtx.Constraints.Max.X = width
			gtx.Constraints.Min.X = width
			return a.layoutPanelSurface(gtx, func(gtx layout.Context) layout.Dimensions {
				return a.layoutPalette(gtx, state)
			})
		}))
	}
	children = append(children, layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
		return layout.Inset{Left: unit.Dp(12), Right: unit.Dp(12), Bottom: unit.Dp(8)}.Layout(gtx, a.layoutCanvas)
	}))
	if state.RightPanelVisible {
		children = append(children, layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			width := gtx.Dp(unit.Dp(300))
			gtx.Constraints.Max.X = width
			gtx.Constraints.Min.X = width
			return a.layoutPanelSurface(gtx, func(gtx layout.Context) layout.Dimensions {
				return a.layoutDetails(gtx, state)
			})
		}))
	}
	return layout.Flex{Axis: layout.Horizontal}.Layout(gtx, children...)
}

func (a *App) layoutPanelSurface(gtx layout.Context, body layout.Widget) layout.Dimensions {
	return layout.Stack{}.Layout(gtx,
		layout.Expanded(func(gtx layout.Context) layout.Dimensions {
			rr := gtx.Dp(unit.Dp(10))
			paint.FillShape(gtx.Ops, a.chrome.Panel, clip.RRect{
				Rect: image.Rectangle{Max: gtx.Constraints.Max},
				NW:   rr, NE: rr, SW: rr, SE: rr,
			}.Op(gtx.Ops))
			return layout.Dimensions{Size: gtx.Constraints.Max}
		}),
		layout.Stacked(func(gtx layout.Context) layout.Dimensions {
			return layout.UniformInset(unit.Dp(10)).Layout(gtx, body)
		}),
	)
}

// layoutPalette lists the catalog; clicking an entry arms placement.
func (a *App) layoutPalette(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(material.H6(a.Theme, "Parts").Layout),
		layout.Rigid(layout.Spacer{Height: unit.Dp(6)}.Layout),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			if len(a.palette) == 0 {
				return material.Body2(a.Theme, "The catalog is empty.").Layout(gtx)
			}
			return a.paletteList.Layout(gtx, len(a.palette), func(gtx layout.Context, idx int) layout.Dimensions {
				def := a.palette[idx]
				clk := a.paletteClickable(def.ID)
				for clk.Clicked(gtx) {
					a.Editor.BeginPlace(def.ID)
					a.invalidate()
				}
				label := def.Name
				if label == "" {
					label = def.ID
				}
				if state.Mode == ModePlace && state.PlaceKind == def.ID {
					label = "▶ " + label
				}
				return layout.Inset{Bottom: unit.Dp(4)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
					gtx.Constraints.Min.X = gtx.Constraints.Max.X
					btn := material.Button(a.Theme, clk, label)
					btn.Inset = layout.UniformInset(unit.Dp(6))
					return btn.Layout(gtx)
				})
			})
		}),
	)
}

// layoutDetails shows the selection, the nets and the last check result.
func (a *App) layoutDetails(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	var rows []layout.Widget
	heading := func(s string) {
		rows = append(rows, material.Subtitle1(a.Theme, s).Layout, layout.Spacer{Height: unit.Dp(4)}.Layout)
	}
	line := func(s string) { rows = append(rows, material.Body2(a.Theme, s).Layout) }

	heading("Selection")
	if c, ok := a.Session.Model.Component(state.Selected); ok {
		line(fmt.Sprintf("%s (%s)", c.DisplayName, c.Kind))
		if p := c.Position(state.View); p != nil {
			line(fmt.Sprintf("Position: %.2f, %.2f mm", p.X, p.Y))
		} else {
			line("Not placed in this view")
		}
		line(fmt.Sprintf("Rotation: %.0f°", c.Rotation))
		keys := make([]string, 0, len(c.Properties))
		for k := range c.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line(fmt.Sprintf("%s = %s", k, c.Properties[k]))
		}
	} else {
		line("Nothing selected.")
	}

	rows = append(rows, layout.Spacer{Height: unit.Dp(12)}.Layout)
	heading("Nets")
	nets := a.Session.Model.Nets()
	if len(nets) == 0 {
		line("No connections yet.")
	}
	for _, n := range nets {
		pins := make([]string, 0, len(n.Pins))
		for _, p := range n.Pins {
			pins = append(pins, a.pinLabel(p))
		}
		line(n.Name + ": " + strings.Join(pins, " "))
	}

	if len(state.Violations) > 0 {
		rows = append(rows, layout.Spacer{Height: unit.Dp(12)}.Layout)
		heading("Problems")
		for _, v := range state.Violations {
			lbl := material.Body2(a.Theme, v)
			lbl.Color = a.chrome.Error
			rows = append(rows, lbl.Layout)
		}
	}

	return a.detailsList.Layout(gtx, len(rows), func(gtx layout.Context, idx int) layout.Dimensions {
		return rows[idx](gtx)
	})
}

func (a *App) pinLabel(p circuit.PinRef) string {
	if c, ok := a.Session.Model.Component(p.ComponentID); ok {
		return c.DisplayName + "." + p.PinID
	}
	return p.String()
}

func (a *App) layoutLogPane(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	a.ensureLogPaneHeight(gtx)
	height := int(a.logPaneHeight)
	if h := gtx.Constraints.Max.Y; h > 0 && height > h {
		height = h
	}
	gtx.Constraints.Min.Y = height
	gtx.Constraints.Max.Y = height
	return layout.Inset{
		Left: unit.Dp(16), Right: unit.Dp(16), Top: unit.Dp(6), Bottom: unit.Dp(6),
	}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		if len(state.Logs) == 0 {
			return material.Caption(a.Theme, "Logs will appear here.").Layout(gtx)
		}
		return a.logList.Layout(gtx, len(state.Logs), func(gtx layout.Context, idx int) layout.Dimensions {
			lbl := material.Caption(a.Theme, state.Logs[idx])
			lbl.Color = a.chrome.Text
			return lbl.Layout(gtx)
		})
	})
}

func (a *App) layoutLogSplitter(gtx layout.Context) layout.Dimensions {
	height := gtx.Dp(unit.Dp(10))
	if height < 4 {
		height = 4
	}
	size := image.Pt(gtx.Constraints.Max.X, height)
	if size.X == 0 {
		size.X = gtx.Dp(unit.Dp(400))
	}
	rect := clip.Rect{Max: size}
	paint.FillShape(gtx.Ops, a.chrome.Splitter, rect.Op())
	stack := rect.Push(gtx.Ops)
	a.logSplitter.Add(gtx.Ops)
	stack.Pop()
	if ev, ok := a.logSplitter.Update(gtx.Metric, gtx.Source, gesture.Vertical); ok {
		switch ev.Kind {
		case pointer.Press:
			a.logSplitDrag = true
			a.logSplitLastY = ev.Position.Y
		case pointer.Drag:
			if a.logSplitDrag {
				dy := ev.Position.Y - a.logSplitLastY
				a.logSplitLastY = ev.Position.Y
				a.logPaneHeight -= dy
				a.clampLogPaneHeight(gtx)
				a.invalidate()
			}
		case pointer.Release, pointer.Cancel:
			a.logSplitDrag = false
		}
	}
	return layout.Dimensions{Size: size}
}

func (a *App) ensureLogPaneHeight(gtx layout.Context) {
	if a.logPaneHeight > 0 {
		return
	}
	a.logPaneHeight = float32(gtx.Dp(unit.Dp(140)))
	a.clampLogPaneHeight(gtx)
}

func (a *App) clampLogPaneHeight(gtx layout.Context) {
	lo := float32(gtx.Dp(unit.Dp(60)))
	hi := float32(gtx.Dp(unit.Dp(400)))
	if a.logPaneHeight < lo {
		a.logPaneHeight = lo
	}
	if a.logPaneHeight > hi {
		a.logPaneHeight = hi
	}
}

func (a *App) layoutStatus(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	history := "clean"
	switch exec := a.Session.Executor; {
	case exec.CanUndo() && exec.CanRedo():
		history = "undo/redo"
	case exec.CanUndo():
		history = "undo"
	case exec.CanRedo():
		history = "redo"
	}
	backend := "none"
	if a.Session.Backend != nil {
		backend = a.Session.Backend.Name()
	}
	labels := []string{
		"Version: " + state.AppVersion,
		"View: " + string(state.View),
		"Mode: " + state.Mode.String(),
		fmt.Sprintf("Parts: %d", len(a.Session.Model.Components())),
		fmt.Sprintf("Zoom: %.1f px/mm", a.Session.Viewport.Zoom),
		"Backend: " + backend,
		"History: " + history,
	}
	return layout.Stack{}.Layout(gtx,
		layout.Expanded(func(gtx layout.Context) layout.Dimensions {
			paint.FillShape(gtx.Ops, a.chrome.StatusBar, clip.Rect{Max: gtx.Constraints.Max}.Op())
			return layout.Dimensions{Size: gtx.Constraints.Max}
		}),
		layout.Stacked(func(gtx layout.Context) layout.Dimensions {
			inset := layout.Inset{Left: unit.Dp(16), Right: unit.Dp(16), Top: unit.Dp(8), Bottom: unit.Dp(8)}
			return inset.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
				children := make([]layout.FlexChild, 0, len(labels)*2+2)
				for _, l := range labels {
					children = append(children,
						layout.Rigid(material.Body2(a.Theme, l).Layout),
						layout.Rigid(layout.Spacer{Width: unit.Dp(18)}.Layout))
				}
				status := material.Body2(a.Theme, "Status: "+state.Status)
				if state.LastError != nil {
					status.Color = a.chrome.Error
				}
				children = append(children,
					layout.Flexed(1, func(gtx layout.Context) layout.Dimensions { return layout.Dimensions{} }),
					layout.Rigid(status.Layout))
				return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx, children...)
			})
		}),
	)
}

func (a *App) paletteClickable(id string) *widget.Clickable {
	if clk, ok := a.paletteClicks[id]; ok {
		return clk
	}
	clk := &widget.Clickable{}
	a.paletteClicks[id] = clk
	return clk
}

// invalidate requests a new frame.
func (a *App) invalidate() {
	if a.Window != nil {
		a.Window.Invalidate()
	}
}
