package engine

import (
	"time"

	"storedesk/realtime"
	"storedesk/statcache"
	"storedesk/store"
)

// startChangeFeed connects the store's row changes to the hub and starts the
// cache maintenance subscriber. PostgreSQL changes arrive through
// LISTEN/NOTIFY; SQLite reports them in process.
func (e *Engine) startChangeFeed() {
	if e.db.Driver() == "postgres" && e.pgPool != nil {
		e.listener = realtime.NewPGListener(e.pgPool, e.hub, store.ChangeChannel)
		go e.listener.Run(e.ctx)
	} else {
		e.db.SetChangeFunc(func(table, op, rowID string) {
			e.hub.Publish(realtime.Change{Channel: table, Op: op, RowID: rowID})
		})
	}

	sub := e.hub.Subscribe(realtime.ChannelOrders, realtime.ChannelProfiles, realtime.ChannelProducts)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer sub.Close()
		for {
			select {
			case <-e.ctx.Done():
				return
			case c, ok := <-sub.C():
				if !ok {
					return
				}
				e.handleTableChange(c)
			}
		}
	}()
}

// handleTableChange refreshes today's daily_stats row and then drops cached
// statistics derived from the changed table. The rollup runs first so a read
// between the two steps cannot cache the old daily row.
func (e *Engine) handleTableChange(c realtime.Change) {
	switch c.Channel {
	case realtime.ChannelOrders, realtime.ChannelProfiles:
		if err := e.db.RollupDailyStats(time.Now().UTC()); err != nil {
			e.logFn("engine: rollup daily stats: %v", err)
		}
		e.statCache.Invalidate(e.ctx, statcache.KeyDashboard, statcache.KeySegments)
		e.statCache.InvalidatePrefix(e.ctx, statcache.KeyDaily)
	case realtime.ChannelProducts:
		if e.debug {
			e.logFn("engine: product %s %s", c.RowID, c.Op)
		}
	}
}

// rollupRecent rebuilds daily_stats for yesterday and today so the
// analytics page is current after a restart.
func (e *Engine) rollupRecent() {
	now := time.Now().UTC()
	for _, day := range []time.Time{now.AddDate(0, 0, -1), now} {
		if err := e.db.RollupDailyStats(day); err != nil {
			e.logFn("engine: rollup %s: %v", day.Format("2006-01-02"), err)
		}
	}
}
