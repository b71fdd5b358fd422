package lifecycle

import (
	"sync"

	"github.com/frostime/sy-query-view/pkg/surface"
)

// sizeProps are the style properties the host keeps re-adding to embed
// containers; they are reset to automatic sizing.
var sizeProps = map[string]bool{
	"height":     true,
	"max-height": true,
	"min-height": true,
}

// Watch observes host mutations on behalf of the instance owning root.
// When root is removed from host, onRemoved runs once. Height overrides
// the host imposes are reset to "auto" each time they appear. The
// observer is tracked, so Dispose detaches it.
func (c *Controller) Watch(host *surface.Host, root *surface.Surface, onRemoved func()) {
	var once sync.Once
	cancel := host.Observe(func(m surface.Mutation) {
		switch m.Kind {
		case surface.ChildRemoved:
			if m.Target == root.ID() && onRemoved != nil {
				once.Do(onRemoved)
			}
		case surface.StyleChanged:
			if sizeProps[m.Target] && m.Value != "" && m.Value != "auto" {
				c.logger.Debug("resetting host size override", "prop", m.Target, "value", m.Value)
				host.SetStyle(m.Target, "auto")
			}
		}
	})
	c.Track(cancel)
}
