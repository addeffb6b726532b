package status

import "fmt"

// document is a thin view over the fixed-width card area of a status
// buffer's mapped bytes. All methods assume the caller already holds the
// buffer's lock.
type document struct {
	buf []byte // len(buf) is a multiple of CardSize
}

func (d document) numCards() int { return len(d.buf) / CardSize }

func (d document) card(i int) []byte { return d.buf[i*CardSize : (i+1)*CardSize] }

// findEnd returns the index of the END card, or -1 if the document is
// malformed (should not happen once initialized via emptyDocument).
func (d document) findEnd() int {
	for i := 0; i < d.numCards(); i++ {
		if string(d.card(i)[:3]) == "END" {
			return i
		}
	}
	return -1
}

func (d document) find(key string) (idx int, valueField string, found bool) {
	for i := 0; i < d.numCards(); i++ {
		k, v, ok := parseCard(string(d.card(i)))
		if !ok {
			continue
		}
		if k == "END" {
			break
		}
		if k == key {
			return i, v, true
		}
	}
	return -1, "", false
}

// put overwrites an existing card for key, or inserts one immediately before
// END, shifting the END card (and nothing else, since a put never changes
// the number of occupied cards beyond +1) down by one slot.
func (d document) put(key, valueField, comment string) error {
	card := formatCard(key, valueField, comment)

	if idx, _, found := d.find(key); found {
		copy(d.card(idx), card)
		return nil
	}

	end := d.findEnd()
	if end < 0 {
		return fmt.Errorf("status: document has no END card")
	}
	if end+1 >= d.numCards() {
		return ErrFull
	}
	copy(d.card(end), card)
	copy(d.card(end+1), endCard)
	return nil
}

// delete removes a card, compacting the cards after it up by one slot.
func (d document) delete(key string) bool {
	idx, _, found := d.find(key)
	if !found {
		return false
	}
	end := d.findEnd()
	for i := idx; i < end; i++ {
		copy(d.card(i), d.card(i+1))
	}
	copy(d.card(end), endCard)
	return true
}

func (d document) keys() []string {
	var keys []string
	for i := 0; i < d.numCards(); i++ {
		k, _, ok := parseCard(string(d.card(i)))
		if !ok || k == "END" {
			break
		}
		keys = append(keys, k)
	}
	return keys
}

func (d document) snapshot() map[string]string {
	out := make(map[string]string)
	for i := 0; i < d.numCards(); i++ {
		k, v, ok := parseCard(string(d.card(i)))
		if !ok || k == "END" {
			break
		}
		out[k] = v
	}
	return out
}
