package dom

import "go2tv.app/embedplayer/internal/domain"

// Document is the root of a surface tree. Identifier lookup is global:
// only elements currently attached under the body are resolvable.
type Document interface {
	Body() Element
	CreateElement(tag string) Element
	ElementByID(id string) Element
}

// Element is a single node in a surface tree.
type Element interface {
	Tag() string
	ID() string
	SetID(id string)
	Attr(name string) string
	SetAttr(name, value string)

	Parent() Element
	Children() []Element
	// ElementsByTag returns all descendants with the given tag, in
	// document order. The receiver itself is never included.
	ElementsByTag(tag string) []Element
	AppendChild(child Element)
	RemoveChild(child Element)
	// Detach removes the element from its parent, if any.
	Detach()

	Size() domain.Size
	SetSize(size domain.Size)
	Visible() bool
	SetVisible(visible bool)

	// Listen registers a handler for a named element event and returns
	// a function that removes exactly that registration. Handlers run
	// in registration order.
	Listen(event string, fn func()) (remove func())
	Dispatch(event string)
}

// AttachedToBody reports whether el is a strict descendant of the
// document body.
func AttachedToBody(doc Document, el Element) bool {
	if doc == nil || el == nil {
		return false
	}
	body := doc.Body()
	for cur := el.Parent(); cur != nil; cur = cur.Parent() {
		if cur == body {
			return true
		}
	}
	return false
}
