// Package registry provides a generic concurrency-safe map keyed by any
// comparable type.
//
// The common case is registering providers once at startup and looking
// them up on every request:
//
//	providers := registry.New[string, ResearchProvider]()
//	providers.Register("weather", weatherProvider)
//	providers.Register("flights", flightProvider)
//
//	if p, ok := providers.Get("weather"); ok {
//		forecast, err := p.Lookup(ctx, args)
//		// ...
//	}
//
// GetOrCreate covers lazy per-key initialization, such as one mutex per
// conversation. The factory runs at most once per key no matter how many
// goroutines ask at the same time:
//
//	locks := registry.New[string, *sync.Mutex]()
//
//	mu := locks.GetOrCreate(conversationID, func() *sync.Mutex {
//		return &sync.Mutex{}
//	})
//	mu.Lock()
//	defer mu.Unlock()
//
// Range iterates over a snapshot, so the callback may register or delete
// entries without affecting the walk in progress:
//
//	providers.Range(func(name string, p ResearchProvider) bool {
//		if p.Stale() {
//			providers.Delete(name)
//		}
//		return true
//	})
package registry
