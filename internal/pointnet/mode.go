package pointnet

// Mode switches stochastic layers between training and inference behaviour.
type Mode int

const (
	// Eval disables dropout and normalises with running statistics.
	Eval Mode = iota
	// Train enables dropout and normalises with per-call statistics.
	Train
)

func (m Mode) String() string {
	if m == Train {
		return "train"
	}
	return "eval"
}
