// Package memdom is an in-memory surface tree. It backs the headless
// embed host and the tests; nothing in it talks to a real browser.
package memdom

import (
	"sync"

	"go2tv.app/embedplayer/internal/dom"
	"go2tv.app/embedplayer/internal/domain"
)

type Document struct {
	body *Element
}

func New() *Document {
	doc := &Document{}
	doc.body = &Element{tag: "body"}
	return doc
}

func (d *Document) Body() dom.Element {
	return d.body
}

func (d *Document) CreateElement(tag string) dom.Element {
	return &Element{tag: tag}
}

// ElementByID resolves an identifier from the body down. Detached
// elements are not resolvable, matching global document lookup.
func (d *Document) ElementByID(id string) dom.Element {
	if id == "" {
		return nil
	}
	if found := findByID(d.body, id); found != nil {
		return found
	}
	return nil
}

func findByID(el *Element, id string) *Element {
	el.mu.Lock()
	children := append([]*Element{}, el.children...)
	el.mu.Unlock()

	for _, child := range children {
		if child.ID() == id {
			return child
		}
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

type listener struct {
	fn      func()
	removed bool
}

type Element struct {
	mu        sync.Mutex
	tag       string
	attrs     map[string]string
	parent    *Element
	children  []*Element
	size      domain.Size
	hidden    bool
	listeners map[string][]*listener
}

func (e *Element) Tag() string {
	return e.tag
}

func (e *Element) ID() string {
	return e.Attr("id")
}

func (e *Element) SetID(id string) {
	e.SetAttr("id", id)
}

func (e *Element) Attr(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attrs[name]
}

func (e *Element) SetAttr(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attrs == nil {
		e.attrs = map[string]string{}
	}
	e.attrs[name] = value
}

func (e *Element) Parent() dom.Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.parent == nil {
		return nil
	}
	return e.parent
}

func (e *Element) Children() []dom.Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]dom.Element, 0, len(e.children))
	for _, child := range e.children {
		result = append(result, child)
	}
	return result
}

func (e *Element) ElementsByTag(tag string) []dom.Element {
	var result []dom.Element
	e.mu.Lock()
	children := append([]*Element{}, e.children...)
	e.mu.Unlock()
	for _, child := range children {
		if child.tag == tag {
			result = append(result, child)
		}
		result = append(result, child.ElementsByTag(tag)...)
	}
	return result
}

func (e *Element) AppendChild(child dom.Element) {
	node, ok := child.(*Element)
	if !ok || node == nil || node == e {
		return
	}
	node.Detach()

	e.mu.Lock()
	e.children = append(e.children, node)
	e.mu.Unlock()

	node.mu.Lock()
	node.parent = e
	node.mu.Unlock()
}

func (e *Element) RemoveChild(child dom.Element) {
	node, ok := child.(*Element)
	if !ok || node == nil {
		return
	}

	e.mu.Lock()
	for i, cur := range e.children {
		if cur == node {
			e.children = append(e.children[:i], e.children[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	node.mu.Lock()
	if node.parent == e {
		node.parent = nil
	}
	node.mu.Unlock()
}

func (e *Element) Detach() {
	e.mu.Lock()
	parent := e.parent
	e.mu.Unlock()
	if parent != nil {
		parent.RemoveChild(e)
	}
}

func (e *Element) Size() domain.Size {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

func (e *Element) SetSize(size domain.Size) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.size = size
}

func (e *Element) Visible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.hidden
}

func (e *Element) SetVisible(visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = !visible
}

func (e *Element) Listen(event string, fn func()) func() {
	entry := &listener{fn: fn}

	e.mu.Lock()
	if e.listeners == nil {
		e.listeners = map[string][]*listener{}
	}
	e.listeners[event] = append(e.listeners[event], entry)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		entry.removed = true
		registered := e.listeners[event]
		for i, cur := range registered {
			if cur == entry {
				e.listeners[event] = append(registered[:i], registered[i+1:]...)
				return
			}
		}
	}
}

func (e *Element) Dispatch(event string) {
	e.mu.Lock()
	snapshot := append([]*listener{}, e.listeners[event]...)
	e.mu.Unlock()

	for _, entry := range snapshot {
		e.mu.Lock()
		removed := entry.removed
		e.mu.Unlock()
		if removed {
			continue
		}
		entry.fn()
	}
}

var (
	_ dom.Document = (*Document)(nil)
	_ dom.Element  = (*Element)(nil)
)
