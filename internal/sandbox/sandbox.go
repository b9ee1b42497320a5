// Package sandbox optionally executes a proxied page's own inline scripts
// against the server-side document model. Scripts get a small DOM surface,
// enough for the common "adjust text and attributes on load" patterns; their
// mutations are recorded like any engine mutation and replayed to the browser.
package sandbox

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/lingolens/lingolens-go/internal/dom"
	"github.com/lingolens/lingolens-go/internal/logging"
)

// scriptTimeout bounds one inline script. Pages occasionally ship busy loops.
const scriptTimeout = 200 * time.Millisecond

// Runner executes inline scripts for one document.
type Runner struct {
	doc *dom.Document
	log *logging.Logger
}

// New creates a runner over a parsed document.
func New(doc *dom.Document, log *logging.Logger) *Runner {
	return &Runner{doc: doc, log: log}
}

// RunInlineScripts executes every inline script collected at parse time, in
// document order. A failing or timed-out script is logged and skipped; page
// scripts must never take the pane down.
func (r *Runner) RunInlineScripts() {
	for i, src := range r.doc.InlineScripts {
		if err := r.run(src); err != nil {
			r.log.Debug("inline script failed",
				zap.Int("index", i), zap.Error(err))
		}
	}
}

func (r *Runner) run(src string) (err error) {
	vm := goja.New()
	r.bind(vm)

	timer := time.AfterFunc(scriptTimeout, func() {
		vm.Interrupt("script timeout")
	})
	defer timer.Stop()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("script panicked: %v", rec)
		}
	}()
	_, err = vm.RunString(src)
	return err
}

// bind installs the DOM surface: document with title, getElementById and
// querySelector-by-tag lookups, plus a console that feeds the pane log.
func (r *Runner) bind(vm *goja.Runtime) {
	document := vm.NewObject()
	document.Set("title", r.doc.Title())
	document.Set("getElementById", func(id string) goja.Value {
		el := r.doc.ElementByID(id)
		if el == nil {
			return goja.Null()
		}
		return r.wrap(vm, el)
	})
	document.Set("body", r.wrap(vm, r.doc.Body()))
	vm.Set("document", document)

	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		args := make([]any, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			args = append(args, a.Export())
		}
		r.log.Debug("page console", zap.Any("args", args))
		return goja.Undefined()
	}
	console.Set("log", logFn)
	console.Set("warn", logFn)
	console.Set("error", logFn)
	vm.Set("console", console)

	vm.Set("window", vm.GlobalObject())
}

// wrap exposes one element to the script with the mutation methods the engine
// also uses, so every script write lands in the change log.
func (r *Runner) wrap(vm *goja.Runtime, el *dom.Element) goja.Value {
	obj := vm.NewObject()
	obj.Set("tagName", el.Tag)
	obj.Set("getAttribute", func(name string) goja.Value {
		v, ok := el.Attr(name)
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(v)
	})
	obj.Set("setAttribute", func(name, value string) { el.SetAttr(name, value) })
	obj.Set("removeAttribute", func(name string) { el.RemoveAttr(name) })

	classList := vm.NewObject()
	classList.Set("add", func(name string) { el.AddClass(name) })
	classList.Set("remove", func(name string) { el.RemoveClass(name) })
	classList.Set("contains", func(name string) bool { return el.HasClass(name) })
	obj.Set("classList", classList)

	obj.DefineAccessorProperty("textContent",
		vm.ToValue(func() string { return el.InnerText() }),
		vm.ToValue(func(s string) { el.SetText(s) }),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	return obj
}
