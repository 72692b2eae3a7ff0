package tools

// Observer is notified as EnsureAll works through the registry. With jobs
// greater than one, calls arrive from several goroutines.
type Observer interface {
	Started(spec ToolSpec)
	Finished(res Result)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Started(ToolSpec) {}
func (NopObserver) Finished(Result)  {}

// ObserverFuncs adapts plain functions; nil fields are skipped.
type ObserverFuncs struct {
	OnStarted  func(spec ToolSpec)
	OnFinished func(res Result)
}

func (o ObserverFuncs) Started(spec ToolSpec) {
	if o.OnStarted != nil {
		o.OnStarted(spec)
	}
}

func (o ObserverFuncs) Finished(res Result) {
	if o.OnFinished != nil {
		o.OnFinished(res)
	}
}
