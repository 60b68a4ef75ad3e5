package jsonp

import "sync"

type scriptElement struct {
	src string
}

// Document holds the script elements injected by in-flight fetches.
type Document struct {
	mu       sync.Mutex
	children map[*scriptElement]struct{}
}

func NewDocument() *Document {
	return &Document{children: make(map[*scriptElement]struct{})}
}

func (d *Document) appendChild(el *scriptElement) {
	d.mu.Lock()
	d.children[el] = struct{}{}
	d.mu.Unlock()
}

func (d *Document) removeChild(el *scriptElement) {
	d.mu.Lock()
	delete(d.children, el)
	d.mu.Unlock()
}

// ChildCount returns the number of attached script elements.
func (d *Document) ChildCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.children)
}

// Sources lists the src of every attached element, in no particular order.
func (d *Document) Sources() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	srcs := make([]string, 0, len(d.children))
	for el := range d.children {
		srcs = append(srcs, el.src)
	}
	return srcs
}
