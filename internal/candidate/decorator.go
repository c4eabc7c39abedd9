package candidate

// Shadow presents a wrapped candidate under different text or comment.
// Identity-sensitive operations must resolve through Item.
type Shadow struct {
	item    Candidate
	kind    string
	text    string
	comment string

	inheritComment bool
}

// ShadowOption customizes a Shadow.
type ShadowOption func(*Shadow)

// WithShadowType overrides the type tag of the wrapped candidate.
func WithShadowType(kind string) ShadowOption {
	return func(s *Shadow) { s.kind = kind }
}

// WithShadowComment sets a comment for the shadow.
func WithShadowComment(comment string) ShadowOption {
	return func(s *Shadow) { s.comment = comment }
}

// InheritComment makes an empty shadow comment fall back to the item's.
func InheritComment(inherit bool) ShadowOption {
	return func(s *Shadow) { s.inheritComment = inherit }
}

// NewShadow wraps item, displaying text instead of the item's text.
// An empty text shows the item's own text. item must not be nil.
func NewShadow(item Candidate, text string, opts ...ShadowOption) *Shadow {
	s := &Shadow{item: item, text: text}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Item returns the wrapped candidate.
func (s *Shadow) Item() Candidate { return s.item }

// Unwrap implements Unwrapper.
func (s *Shadow) Unwrap() Candidate { return s.item }

func (s *Shadow) Type() string {
	if s.kind != "" {
		return s.kind
	}
	return s.item.Type()
}

func (s *Shadow) Start() int       { return s.item.Start() }
func (s *Shadow) End() int         { return s.item.End() }
func (s *Shadow) Quality() float64 { return s.item.Quality() }
func (s *Shadow) Preedit() string  { return s.item.Preedit() }

func (s *Shadow) Text() string {
	if s.text == "" {
		return s.item.Text()
	}
	return s.text
}

func (s *Shadow) Comment() string {
	if s.comment == "" && s.inheritComment {
		return s.item.Comment()
	}
	return s.comment
}

// Uniquified merges candidates from independent sources that resolve to
// the same display text. The first item determines text, range and type.
type Uniquified struct {
	items []Candidate
}

// NewUniquified creates a Uniquified candidate seeded with first.
// first must not be nil.
func NewUniquified(first Candidate) *Uniquified {
	return &Uniquified{items: []Candidate{first}}
}

// Append adds a duplicate behind the existing items.
func (u *Uniquified) Append(c Candidate) {
	if c == nil {
		return
	}
	u.items = append(u.items, c)
}

// Items returns the merged candidates in merge order.
func (u *Uniquified) Items() []Candidate {
	return u.items
}

// Unwrap implements Unwrapper.
func (u *Uniquified) Unwrap() Candidate { return u.items[0] }

func (u *Uniquified) Type() string    { return u.items[0].Type() }
func (u *Uniquified) Start() int      { return u.items[0].Start() }
func (u *Uniquified) End() int        { return u.items[0].End() }
func (u *Uniquified) Text() string    { return u.items[0].Text() }
func (u *Uniquified) Comment() string { return u.items[0].Comment() }
func (u *Uniquified) Preedit() string { return u.items[0].Preedit() }

// Quality is the best quality among the merged items.
func (u *Uniquified) Quality() float64 {
	q := u.items[0].Quality()
	for _, item := range u.items[1:] {
		if item.Quality() > q {
			q = item.Quality()
		}
	}
	return q
}
