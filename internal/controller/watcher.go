package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/sbahar619/namespace-label-spreader/internal/gateway"
)

// EventSource opens the cluster event stream, see gateway.Gateway.WatchEvents.
type EventSource interface {
	WatchEvents(ctx context.Context, onEvent func(gateway.WatchEvent)) error
}

// NamespaceLookup is the namespace cache as seen by the watcher.
type NamespaceLookup interface {
	RefreshAll(ctx context.Context) error
	Run(ctx context.Context)
	Lookup(ctx context.Context, name string) (gateway.Namespace, error)
}

// Reconciler applies labels to one resource.
type Reconciler interface {
	Reconcile(ctx context.Context, ref gateway.ResourceRef, labelsToApply map[string]string) (bool, error)
}

// DefaultBackoff paces attempts to open the watch while the API server refuses it.
// A stream that was opened and then closed is re-opened without delay.
var DefaultBackoff = wait.Backoff{
	Duration: 800 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
	Steps:    math.MaxInt32,
	Cap:      30 * time.Second,
}

// Watcher drives the spreader: it loads the namespace cache, keeps it
// refreshed and dispatches every event of the cluster event stream to the
// filter and the reconciler. It never stops watching on its own.
type Watcher struct {
	Events     EventSource
	Namespaces NamespaceLookup
	Reconciler Reconciler
	Rule       PropagationRule
	Backoff    wait.Backoff

	log   logr.Logger
	ready atomic.Bool
}

var _ manager.Runnable = &Watcher{}

func NewWatcher(events EventSource, namespaces NamespaceLookup, reconciler Reconciler, rule PropagationRule) *Watcher {
	return &Watcher{
		Events:     events,
		Namespaces: namespaces,
		Reconciler: reconciler,
		Rule:       rule,
		Backoff:    DefaultBackoff,
		log:        ctrl.Log.WithName(ControllerName),
	}
}

// Start blocks until ctx is done. A failing initial namespace load is
// returned, the spreader cannot do anything useful without it.
func (w *Watcher) Start(ctx context.Context) error {
	if w.log.GetSink() == nil {
		w.log = ctrl.Log.WithName(ControllerName)
	}
	if w.Backoff.Duration == 0 {
		w.Backoff = DefaultBackoff
	}
	ctx = log.IntoContext(ctx, w.log)

	w.log.V(1).Info("cache initializing")
	if err := w.Namespaces.RefreshAll(ctx); err != nil {
		return fmt.Errorf("initial namespace cache load failed: %w", err)
	}
	w.log.V(1).Info("cache ok")
	go w.Namespaces.Run(ctx)
	w.ready.Store(true)

	w.watch(ctx)
	return nil
}

// ReadyCheck is a healthz.Checker that passes once the cache is loaded.
func (w *Watcher) ReadyCheck(_ *http.Request) error {
	if !w.ready.Load() {
		return errors.New("namespace cache not loaded yet")
	}
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	backoff := w.Backoff
	for restart := false; ctx.Err() == nil; restart = true {
		if restart {
			watchRestartsTotal.Inc()
			w.log.V(1).Info("restart watching")
		} else {
			w.log.Info("start watching")
		}

		err := w.Events.WatchEvents(ctx, func(ev gateway.WatchEvent) {
			w.dispatch(ctx, ev)
		})
		if err == nil {
			backoff = w.Backoff
			w.log.V(1).Info("watch ended")
			continue
		}

		delay := backoff.Step()
		w.log.Error(err, "could not open event watch", "retryAfter", delay)
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
}

// dispatch handles one event. Nothing that happens here may end the watch.
func (w *Watcher) dispatch(ctx context.Context, ev gateway.WatchEvent) {
	eventsTotal.WithLabelValues(string(ev.Type)).Inc()
	if !ev.Actionable() {
		return
	}

	ref := ev.InvolvedObject
	if !w.Rule.AppliesTo(ref) {
		return
	}

	l := w.log.WithValues("kind", ref.Kind, "name", ref.Name, "namespace", ref.Namespace)
	defer func() {
		if r := recover(); r != nil {
			l.Error(fmt.Errorf("%v", r), "panic while handling event")
		}
	}()

	ns, err := w.Namespaces.Lookup(ctx, ref.Namespace)
	if err != nil {
		l.Error(err, "failed to resolve namespace of involved object")
		return
	}

	applies, labels := ShouldPropagate(ns, ref.Kind, ref.Namespace, w.Rule)
	if !applies {
		return
	}

	if _, err := w.Reconciler.Reconcile(ctx, ref, labels); err != nil {
		l.Error(err, "failed to spread namespace labels")
	}
}
