package blocks

import (
	"fmt"

	"github.com/rmscene/rmscene/crdt"
	"github.com/rmscene/rmscene/datastream"
	"github.com/rmscene/rmscene/tagged"
)

// TextItemValue is the value half of a RootText CRDT item: either a run of
// text, or (when FormatCode is non-nil) an inline-formatting marker code —
// in which case Text is always empty.
type TextItemValue struct {
	Text       string
	FormatCode *int32
}

// TextFormatEntry is one entry of a RootText block's format table: an
// untagged CrdtId key (naming the paragraph's start position) mapped to a
// timestamped paragraph-style byte. The style byte's meaning beyond the
// closed ParagraphStyle enumeration the text package defines is opaque
// here; this layer only carries it.
type TextFormatEntry struct {
	Key       datastream.CrdtId
	Timestamp datastream.CrdtId
	StyleByte uint8
}

func readTextItem(r *tagged.Reader) (out crdt.Item[TextItemValue], err error) {
	sb, err := r.EnterSubblock(0)
	if err != nil {
		return out, err
	}
	defer func() {
		if cerr := sb.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	out.ItemID, err = r.ReadID(2)
	if err != nil {
		return out, err
	}
	out.LeftID, err = r.ReadID(3)
	if err != nil {
		return out, err
	}
	out.RightID, err = r.ReadID(4)
	if err != nil {
		return out, err
	}
	deletedLength, err := r.ReadInt(5)
	if err != nil {
		return out, err
	}
	out.DeletedLength = uint32(deletedLength)

	if sb.HasSubblock(6) {
		text, format, ferr := r.ReadStringWithFormat(6)
		if ferr != nil {
			err = ferr
			return out, err
		}
		out.Value = TextItemValue{Text: text, FormatCode: format}
	}
	return out, nil
}

func writeTextItem(w *tagged.Writer, item crdt.Item[TextItemValue]) error {
	return w.WithSubblock(0, nil, func(w *tagged.Writer) error {
		if err := w.WriteID(2, item.ItemID); err != nil {
			return err
		}
		if err := w.WriteID(3, item.LeftID); err != nil {
			return err
		}
		if err := w.WriteID(4, item.RightID); err != nil {
			return err
		}
		if err := w.WriteInt(5, int32(item.DeletedLength)); err != nil {
			return err
		}
		if item.Value.Text != "" || item.Value.FormatCode != nil {
			return w.WriteStringWithFormat(6, item.Value.Text, item.Value.FormatCode)
		}
		return nil
	})
}

const textFormatStyleTag uint8 = 17

func readTextFormatEntry(r *tagged.Reader) (TextFormatEntry, error) {
	var out TextFormatEntry
	key, err := r.DS.ReadCrdtId()
	if err != nil {
		return out, err
	}
	out.Key = key

	out.Timestamp, err = r.ReadID(1)
	if err != nil {
		return out, err
	}

	sb, err := r.EnterSubblock(2)
	if err != nil {
		return out, err
	}
	tag, err := r.DS.ReadUint8()
	if err == nil && tag != textFormatStyleTag {
		err = fmt.Errorf("%w: expected format marker byte %d, got %d", datastream.ErrValue, textFormatStyleTag, tag)
	}
	if err == nil {
		out.StyleByte, err = r.DS.ReadUint8()
	}
	if cerr := sb.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return out, err
}

func writeTextFormatEntry(w *tagged.Writer, e TextFormatEntry) error {
	if err := w.DS.WriteCrdtId(e.Key); err != nil {
		return err
	}
	if err := w.WriteID(1, e.Timestamp); err != nil {
		return err
	}
	return w.WithSubblock(2, nil, func(w *tagged.Writer) error {
		if err := w.DS.WriteUint8(textFormatStyleTag); err != nil {
			return err
		}
		return w.DS.WriteUint8(e.StyleByte)
	})
}

// RootTextBlock is the text-content block (0x07): the CRDT sequence of
// character/format-marker items making up a page's text, the per-paragraph
// style table, and the text frame's on-page position and width.
type RootTextBlock struct {
	BlockID datastream.CrdtId
	Items   []crdt.Item[TextItemValue]
	Formats []TextFormatEntry
	PosX    float64
	PosY    float64
	Width   float32
}

func (b *RootTextBlock) Type() BlockType { return BlockRootText }

func (b *RootTextBlock) Versions(_ WriteOptions) (uint8, uint8) { return 0, 2 }

func (b *RootTextBlock) ReadBody(r *tagged.Reader, _ tagged.BlockInfo) error {
	blockID, err := r.ReadID(1)
	if err != nil {
		return err
	}
	if !blockID.IsEndMarker() {
		return fmt.Errorf("%w: RootText block_id must be the end-marker, got %s", datastream.ErrValue, blockID)
	}
	b.BlockID = blockID

	outer, err := r.EnterSubblock(2)
	if err != nil {
		return err
	}
	err = func() error {
		itemsWrap, err := r.EnterSubblock(1)
		if err != nil {
			return err
		}
		err = func() error {
			itemsList, err := r.EnterSubblock(1)
			if err != nil {
				return err
			}
			err = func() error {
				count, err := r.DS.ReadVarUint()
				if err != nil {
					return err
				}
				b.Items = make([]crdt.Item[TextItemValue], 0, count)
				for i := uint64(0); i < count; i++ {
					item, err := readTextItem(r)
					if err != nil {
						return err
					}
					b.Items = append(b.Items, item)
				}
				return nil
			}()
			if cerr := itemsList.Close(); cerr != nil && err == nil {
				err = cerr
			}
			return err
		}()
		if cerr := itemsWrap.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	}()
	if err != nil {
		return err
	}

	err = func() error {
		formatsWrap, err := r.EnterSubblock(2)
		if err != nil {
			return err
		}
		err = func() error {
			formatsList, err := r.EnterSubblock(1)
			if err != nil {
				return err
			}
			err = func() error {
				count, err := r.DS.ReadVarUint()
				if err != nil {
					return err
				}
				b.Formats = make([]TextFormatEntry, 0, count)
				for i := uint64(0); i < count; i++ {
					entry, err := readTextFormatEntry(r)
					if err != nil {
						return err
					}
					b.Formats = append(b.Formats, entry)
				}
				return nil
			}()
			if cerr := formatsList.Close(); cerr != nil && err == nil {
				err = cerr
			}
			return err
		}()
		if cerr := formatsWrap.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	}()
	if err != nil {
		return err
	}
	if cerr := outer.Close(); cerr != nil {
		return cerr
	}

	posSB, err := r.EnterSubblock(3)
	if err != nil {
		return err
	}
	b.PosX, err = r.DS.ReadFloat64()
	if err == nil {
		b.PosY, err = r.DS.ReadFloat64()
	}
	if cerr := posSB.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	b.Width, err = r.ReadFloat(4)
	return err
}

func (b *RootTextBlock) WriteBody(w *tagged.Writer, _ WriteOptions) error {
	if err := w.WriteID(1, b.BlockID); err != nil {
		return err
	}
	err := w.WithSubblock(2, nil, func(w *tagged.Writer) error {
		err := w.WithSubblock(1, nil, func(w *tagged.Writer) error {
			return w.WithSubblock(1, nil, func(w *tagged.Writer) error {
				if err := w.DS.WriteVarUint(uint64(len(b.Items))); err != nil {
					return err
				}
				for _, item := range b.Items {
					if err := writeTextItem(w, item); err != nil {
						return err
					}
				}
				return nil
			})
		})
		if err != nil {
			return err
		}
		return w.WithSubblock(2, nil, func(w *tagged.Writer) error {
			return w.WithSubblock(1, nil, func(w *tagged.Writer) error {
				if err := w.DS.WriteVarUint(uint64(len(b.Formats))); err != nil {
					return err
				}
				for _, entry := range b.Formats {
					if err := writeTextFormatEntry(w, entry); err != nil {
						return err
					}
				}
				return nil
			})
		})
	})
	if err != nil {
		return err
	}
	err = w.WithSubblock(3, nil, func(w *tagged.Writer) error {
		if err := w.DS.WriteFloat64(b.PosX); err != nil {
			return err
		}
		return w.DS.WriteFloat64(b.PosY)
	})
	if err != nil {
		return err
	}
	return w.WriteFloat(4, b.Width)
}
