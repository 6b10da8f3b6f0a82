// Package blocks implements the block-layer codec: the registry of block
// kinds keyed by block-type byte, the shared SceneItem outer frame, and the
// top-level read/write loops with error containment.
package blocks

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rmscene/rmscene/crdt"
	"github.com/rmscene/rmscene/datastream"
	"github.com/rmscene/rmscene/tagged"
)

// BlockType is the wire discriminator in a block's 8-byte frame.
type BlockType uint8

const (
	BlockMigrationInfo      BlockType = 0x00
	BlockSceneTree          BlockType = 0x01
	BlockTreeNode           BlockType = 0x02
	BlockSceneGlyphItem     BlockType = 0x03
	BlockSceneGroupItem     BlockType = 0x04
	BlockSceneLineItem      BlockType = 0x05
	BlockSceneTextItem      BlockType = 0x06
	BlockRootText           BlockType = 0x07
	BlockSceneTombstoneItem BlockType = 0x08
	BlockAuthorIds          BlockType = 0x09
	BlockPageInfo           BlockType = 0x0A
	BlockSceneInfo          BlockType = 0x0D
)

// Block is implemented by every concrete block kind. ReadBody/WriteBody
// operate purely on the body — the top-level loops own frame acquisition.
type Block interface {
	Type() BlockType
	Versions(opts WriteOptions) (minVersion, currentVersion uint8)
	ReadBody(r *tagged.Reader, info tagged.BlockInfo) error
	WriteBody(w *tagged.Writer, opts WriteOptions) error
}

var registry = map[BlockType]func() Block{
	BlockAuthorIds:          func() Block { return &AuthorIdsBlock{} },
	BlockMigrationInfo:      func() Block { return &MigrationInfoBlock{} },
	BlockTreeNode:           func() Block { return &TreeNodeBlock{} },
	BlockPageInfo:           func() Block { return &PageInfoBlock{} },
	BlockSceneTree:          func() Block { return &SceneTreeBlock{} },
	BlockSceneInfo:          func() Block { return &SceneInfoBlock{} },
	BlockSceneGroupItem:     func() Block { return &SceneGroupItemBlock{} },
	BlockSceneLineItem:      func() Block { return &SceneLineItemBlock{} },
	BlockSceneGlyphItem:     func() Block { return &SceneGlyphItemBlock{} },
	BlockSceneTextItem:      func() Block { return &SceneTextItemBlock{} },
	BlockSceneTombstoneItem: func() Block { return &SceneTombstoneItemBlock{} },
	BlockRootText:           func() Block { return &RootTextBlock{} },
}

// UnreadableBlock is the fallback for a block whose body failed to parse,
// or whose type is unknown to the registry: the raw body is kept so the
// byte stream can be re-emitted losslessly.
type UnreadableBlock struct {
	Info tagged.BlockInfo
	Err  error
	Body []byte
}

func (b *UnreadableBlock) Type() BlockType { return BlockType(b.Info.BlockType) }

// Versions returns the version pair recorded in the original block header.
func (b *UnreadableBlock) Versions(_ WriteOptions) (uint8, uint8) {
	return b.Info.MinVersion, b.Info.CurrentVersion
}

// ReadBody keeps the whole declared body as raw bytes.
func (b *UnreadableBlock) ReadBody(r *tagged.Reader, info tagged.BlockInfo) error {
	body, err := r.DS.ReadBytes(int(info.Length))
	b.Info, b.Body = info, body
	return err
}

// WriteBody re-emits the raw body verbatim.
func (b *UnreadableBlock) WriteBody(w *tagged.Writer, _ WriteOptions) error {
	return w.DS.WriteBytes(b.Body)
}

// ReadBlocks decodes every block from r until EOF. A block whose body fails
// to parse (or whose type is unknown) is recovered as an UnreadableBlock
// rather than aborting the whole read.
func ReadBlocks(r *tagged.Reader) ([]Block, error) {
	var out []Block
	for {
		startPos := r.DS.Pos()
		info, scope, err := r.EnterBlock()
		if err != nil {
			if errors.Is(err, datastream.ErrEOF) {
				break
			}
			return out, err
		}

		ctor, known := registry[BlockType(info.BlockType)]
		if !known {
			body, rerr := drainUnreadable(r, scope)
			if rerr != nil {
				return out, rerr
			}
			out = append(out, &UnreadableBlock{
				Info: info,
				Err:  fmt.Errorf("%w: unknown block type 0x%02X", datastream.ErrValue, info.BlockType),
				Body: body,
			})
			continue
		}

		block := ctor()
		bodyErr := block.ReadBody(r, info)
		if bodyErr != nil {
			if serr := r.DS.SeekTo(startPos); serr != nil {
				return out, serr
			}
			if _, _, rerr := r.EnterBlock(); rerr != nil {
				return out, rerr
			}
			body, rerr := drainUnreadable(r, scope)
			if rerr != nil {
				return out, rerr
			}
			out = append(out, &UnreadableBlock{Info: info, Err: bodyErr, Body: body})
			continue
		}
		if cerr := scope.Close(); cerr != nil {
			if serr := r.DS.SeekTo(startPos); serr != nil {
				return out, serr
			}
			if _, _, rerr := r.EnterBlock(); rerr != nil {
				return out, rerr
			}
			body, rerr := drainUnreadable(r, scope)
			if rerr != nil {
				return out, rerr
			}
			out = append(out, &UnreadableBlock{Info: info, Err: cerr, Body: body})
			continue
		}
		out = append(out, block)
	}
	return out, nil
}

// drainUnreadable re-reads a block's full declared body from its start,
// leaving the reader positioned at the block's end, matching what Scope's
// own Close would have left it at on a clean read.
func drainUnreadable(r *tagged.Reader, scope *tagged.Scope) ([]byte, error) {
	return r.DS.ReadBytes(int(scope.BodyLen()))
}

// WriteBlocks encodes every block in order under the given options.
func WriteBlocks(w *tagged.Writer, blocks []Block, opts WriteOptions) error {
	for _, block := range blocks {
		if unreadable, ok := block.(*UnreadableBlock); ok {
			if err := w.DS.WriteUint32(uint32(len(unreadable.Body))); err != nil {
				return err
			}
			if err := w.DS.WriteUint8(0); err != nil {
				return err
			}
			if err := w.DS.WriteUint8(unreadable.Info.MinVersion); err != nil {
				return err
			}
			if err := w.DS.WriteUint8(unreadable.Info.CurrentVersion); err != nil {
				return err
			}
			if err := w.DS.WriteUint8(unreadable.Info.BlockType); err != nil {
				return err
			}
			if err := w.DS.WriteBytes(unreadable.Body); err != nil {
				return err
			}
			continue
		}
		minVersion, currentVersion := block.Versions(opts)
		err := w.WithBlock(uint8(block.Type()), minVersion, currentVersion, nil, func(w *tagged.Writer) error {
			return block.WriteBody(w, opts)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// --- AuthorIds (0x09) ---

// AuthorIdsBlock maps per-file small author ids to their stable UUIDs.
type AuthorIdsBlock struct {
	AuthorUUIDs map[uint16]uuid.UUID
}

func (b *AuthorIdsBlock) Type() BlockType                         { return BlockAuthorIds }
func (b *AuthorIdsBlock) Versions(_ WriteOptions) (uint8, uint8)   { return 0, 0 }

func uuidToWireLE(u uuid.UUID) []byte {
	b := make([]byte, 16)
	copy(b, u[:])
	b[0], b[3] = b[3], b[0]
	b[1], b[2] = b[2], b[1]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]
	return b
}

func uuidFromWireLE(b []byte) uuid.UUID {
	var u uuid.UUID
	copy(u[:], b)
	u[0], u[3] = u[3], u[0]
	u[1], u[2] = u[2], u[1]
	u[4], u[5] = u[5], u[4]
	u[6], u[7] = u[7], u[6]
	return u
}

func (b *AuthorIdsBlock) ReadBody(r *tagged.Reader, _ tagged.BlockInfo) error {
	count, err := r.DS.ReadVarUint()
	if err != nil {
		return err
	}
	b.AuthorUUIDs = make(map[uint16]uuid.UUID, count)
	for i := uint64(0); i < count; i++ {
		sb, err := r.EnterSubblock(0)
		if err != nil {
			return err
		}
		err = func() error {
			idLen, err := r.DS.ReadVarUint()
			if err != nil {
				return err
			}
			if idLen != 16 {
				return fmt.Errorf("%w: expected UUID length 16, got %d", datastream.ErrValue, idLen)
			}
			raw, err := r.DS.ReadBytes(16)
			if err != nil {
				return err
			}
			authorID, err := r.DS.ReadUint16()
			if err != nil {
				return err
			}
			b.AuthorUUIDs[authorID] = uuidFromWireLE(raw)
			return nil
		}()
		if cerr := sb.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *AuthorIdsBlock) WriteBody(w *tagged.Writer, _ WriteOptions) error {
	if err := w.DS.WriteVarUint(uint64(len(b.AuthorUUIDs))); err != nil {
		return err
	}
	ids := sortedUint16Keys(b.AuthorUUIDs)
	for _, authorID := range ids {
		u := b.AuthorUUIDs[authorID]
		err := w.WithSubblock(0, nil, func(w *tagged.Writer) error {
			if err := w.DS.WriteVarUint(16); err != nil {
				return err
			}
			if err := w.DS.WriteBytes(uuidToWireLE(u)); err != nil {
				return err
			}
			return w.DS.WriteUint16(authorID)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func sortedUint16Keys(m map[uint16]uuid.UUID) []uint16 {
	out := make([]uint16, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// --- MigrationInfo (0x00) ---

// MigrationInfoBlock marks the schema-migration checkpoint a file was
// written at.
type MigrationInfoBlock struct {
	MigrationID datastream.CrdtId
	IsDevice    bool
	ExtraFlag   *bool
}

func (b *MigrationInfoBlock) Type() BlockType { return BlockMigrationInfo }
func (b *MigrationInfoBlock) Versions(_ WriteOptions) (uint8, uint8) { return 1, 1 }

func (b *MigrationInfoBlock) ReadBody(r *tagged.Reader, _ tagged.BlockInfo) error {
	id, err := r.ReadID(1)
	if err != nil {
		return err
	}
	isDevice, err := r.ReadBool(2)
	if err != nil {
		return err
	}
	b.MigrationID = id
	b.IsDevice = isDevice
	if r.CheckTag(3, tagged.Byte1) {
		v, err := r.ReadBool(3)
		if err != nil {
			return err
		}
		b.ExtraFlag = &v
	}
	return nil
}

func (b *MigrationInfoBlock) WriteBody(w *tagged.Writer, opts WriteOptions) error {
	if err := w.WriteID(1, b.MigrationID); err != nil {
		return err
	}
	if err := w.WriteBool(2, b.IsDevice); err != nil {
		return err
	}
	if opts.AtLeast("3.2.2") {
		var v bool
		if b.ExtraFlag != nil {
			v = *b.ExtraFlag
		}
		return w.WriteBool(3, v)
	}
	return nil
}

// --- TreeNode (0x02) ---

// TreeNodeBlock carries a Group's display metadata: label, visibility and
// optional anchor-to-text-position fields. It enriches a Group placeholder
// already created by a SceneTree block of the same node id.
type TreeNodeBlock struct {
	NodeID          datastream.CrdtId
	Label           datastream.LwwValue[string]
	Visible         datastream.LwwValue[bool]
	AnchorID        *datastream.LwwValue[datastream.CrdtId]
	AnchorType      *datastream.LwwValue[uint8]
	AnchorThreshold *datastream.LwwValue[float32]
	AnchorOriginX   *datastream.LwwValue[float32]
}

func (b *TreeNodeBlock) Type() BlockType { return BlockTreeNode }

func (b *TreeNodeBlock) Versions(opts WriteOptions) (uint8, uint8) {
	if opts.AtLeast("3.4") {
		return 0, 2
	}
	return 0, 1
}

func (b *TreeNodeBlock) ReadBody(r *tagged.Reader, _ tagged.BlockInfo) error {
	id, err := r.ReadID(1)
	if err != nil {
		return err
	}
	b.NodeID = id
	b.Label, err = r.ReadLwwString(2)
	if err != nil {
		return err
	}
	b.Visible, err = r.ReadLwwBool(3)
	if err != nil {
		return err
	}
	if r.CheckTag(7, tagged.Length4) {
		anchorID, err := r.ReadLwwID(7)
		if err != nil {
			return err
		}
		anchorType, err := r.ReadLwwByte(8)
		if err != nil {
			return err
		}
		anchorThreshold, err := r.ReadLwwFloat(9)
		if err != nil {
			return err
		}
		anchorOriginX, err := r.ReadLwwFloat(10)
		if err != nil {
			return err
		}
		b.AnchorID = &anchorID
		b.AnchorType = &anchorType
		b.AnchorThreshold = &anchorThreshold
		b.AnchorOriginX = &anchorOriginX
	}
	return nil
}

func (b *TreeNodeBlock) WriteBody(w *tagged.Writer, _ WriteOptions) error {
	if err := w.WriteID(1, b.NodeID); err != nil {
		return err
	}
	if err := w.WriteLwwString(2, b.Label); err != nil {
		return err
	}
	if err := w.WriteLwwBool(3, b.Visible); err != nil {
		return err
	}
	if b.AnchorID == nil {
		return nil
	}
	if err := w.WriteLwwID(7, *b.AnchorID); err != nil {
		return err
	}
	if err := w.WriteLwwByte(8, *b.AnchorType); err != nil {
		return err
	}
	if err := w.WriteLwwFloat(9, *b.AnchorThreshold); err != nil {
		return err
	}
	return w.WriteLwwFloat(10, *b.AnchorOriginX)
}

// --- PageInfo (0x0A) ---

// PageInfoBlock carries per-page usage counters.
type PageInfoBlock struct {
	LoadsCount     int32
	MergesCount    int32
	TextCharsCount int32
	TextLinesCount int32
	FolioUseCount  *int32
}

func (b *PageInfoBlock) Type() BlockType                       { return BlockPageInfo }
func (b *PageInfoBlock) Versions(_ WriteOptions) (uint8, uint8) { return 0, 0 }

func (b *PageInfoBlock) ReadBody(r *tagged.Reader, _ tagged.BlockInfo) error {
	var err error
	if b.LoadsCount, err = r.ReadInt(1); err != nil {
		return err
	}
	if b.MergesCount, err = r.ReadInt(2); err != nil {
		return err
	}
	if b.TextCharsCount, err = r.ReadInt(3); err != nil {
		return err
	}
	if b.TextLinesCount, err = r.ReadInt(4); err != nil {
		return err
	}
	if r.CheckTag(5, tagged.Byte4) {
		v, err := r.ReadInt(5)
		if err != nil {
			return err
		}
		b.FolioUseCount = &v
	}
	return nil
}

func (b *PageInfoBlock) WriteBody(w *tagged.Writer, opts WriteOptions) error {
	if err := w.WriteInt(1, b.LoadsCount); err != nil {
		return err
	}
	if err := w.WriteInt(2, b.MergesCount); err != nil {
		return err
	}
	if err := w.WriteInt(3, b.TextCharsCount); err != nil {
		return err
	}
	if err := w.WriteInt(4, b.TextLinesCount); err != nil {
		return err
	}
	if opts.AtLeast("3.2.2") {
		var v int32
		if b.FolioUseCount != nil {
			v = *b.FolioUseCount
		}
		return w.WriteInt(5, v)
	}
	return nil
}

// --- SceneTree (0x01) ---

// SceneTreeBlock introduces a Group placeholder node into the tree.
type SceneTreeBlock struct {
	TreeID   datastream.CrdtId
	NodeID   datastream.CrdtId
	IsUpdate bool
	ParentID datastream.CrdtId
}

func (b *SceneTreeBlock) Type() BlockType                       { return BlockSceneTree }
func (b *SceneTreeBlock) Versions(_ WriteOptions) (uint8, uint8) { return 0, 0 }

func (b *SceneTreeBlock) ReadBody(r *tagged.Reader, _ tagged.BlockInfo) error {
	var err error
	if b.TreeID, err = r.ReadID(1); err != nil {
		return err
	}
	if b.NodeID, err = r.ReadID(2); err != nil {
		return err
	}
	if b.IsUpdate, err = r.ReadBool(3); err != nil {
		return err
	}
	sb, err := r.EnterSubblock(4)
	if err != nil {
		return err
	}
	b.ParentID, err = r.ReadID(1)
	if cerr := sb.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (b *SceneTreeBlock) WriteBody(w *tagged.Writer, _ WriteOptions) error {
	if err := w.WriteID(1, b.TreeID); err != nil {
		return err
	}
	if err := w.WriteID(2, b.NodeID); err != nil {
		return err
	}
	if err := w.WriteBool(3, b.IsUpdate); err != nil {
		return err
	}
	return w.WithSubblock(4, nil, func(w *tagged.Writer) error {
		return w.WriteID(1, b.ParentID)
	})
}

// --- SceneInfo (0x0D) ---

// SceneInfoBlock carries page-level scene settings. Field names beyond
// their wire shape are not attested by any observed fixture; PaperSize's
// sub-block shape ({int@1 width; int@2 height}) is an inferred, internally
// consistent choice documented as such.
type SceneInfoBlock struct {
	Current   datastream.LwwValue[datastream.CrdtId]
	Locked    *datastream.LwwValue[bool]
	Archived  *datastream.LwwValue[bool]
	PaperSize *[2]int32
}

func (b *SceneInfoBlock) Type() BlockType                       { return BlockSceneInfo }
func (b *SceneInfoBlock) Versions(_ WriteOptions) (uint8, uint8) { return 0, 0 }

func (b *SceneInfoBlock) ReadBody(r *tagged.Reader, _ tagged.BlockInfo) error {
	var err error
	if b.Current, err = r.ReadLwwID(1); err != nil {
		return err
	}
	if r.CheckTag(2, tagged.Length4) {
		v, err := r.ReadLwwBool(2)
		if err != nil {
			return err
		}
		b.Locked = &v
	}
	if r.CheckTag(3, tagged.Length4) {
		v, err := r.ReadLwwBool(3)
		if err != nil {
			return err
		}
		b.Archived = &v
	}
	if r.CheckTag(5, tagged.Length4) {
		sb, err := r.EnterSubblock(5)
		if err != nil {
			return err
		}
		width, err := r.ReadInt(1)
		var height int32
		if err == nil {
			height, err = r.ReadInt(2)
		}
		if cerr := sb.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		b.PaperSize = &[2]int32{width, height}
	}
	return nil
}

func (b *SceneInfoBlock) WriteBody(w *tagged.Writer, _ WriteOptions) error {
	if err := w.WriteLwwID(1, b.Current); err != nil {
		return err
	}
	if b.Locked != nil {
		if err := w.WriteLwwBool(2, *b.Locked); err != nil {
			return err
		}
	}
	if b.Archived != nil {
		if err := w.WriteLwwBool(3, *b.Archived); err != nil {
			return err
		}
	}
	if b.PaperSize != nil {
		return w.WithSubblock(5, nil, func(w *tagged.Writer) error {
			if err := w.WriteInt(1, b.PaperSize[0]); err != nil {
				return err
			}
			return w.WriteInt(2, b.PaperSize[1])
		})
	}
	return nil
}

// --- SceneItem family shared frame (0x03, 0x04, 0x05, 0x06, 0x08) ---

func readItemFrame(r *tagged.Reader) (parentID, itemID, leftID, rightID datastream.CrdtId, deletedLength uint32, err error) {
	if parentID, err = r.ReadID(1); err != nil {
		return
	}
	if itemID, err = r.ReadID(2); err != nil {
		return
	}
	if leftID, err = r.ReadID(3); err != nil {
		return
	}
	if rightID, err = r.ReadID(4); err != nil {
		return
	}
	var dl int32
	dl, err = r.ReadInt(5)
	deletedLength = uint32(dl)
	return
}

func writeItemFrame(w *tagged.Writer, parentID, itemID, leftID, rightID datastream.CrdtId, deletedLength uint32) error {
	if err := w.WriteID(1, parentID); err != nil {
		return err
	}
	if err := w.WriteID(2, itemID); err != nil {
		return err
	}
	if err := w.WriteID(3, leftID); err != nil {
		return err
	}
	if err := w.WriteID(4, rightID); err != nil {
		return err
	}
	return w.WriteInt(5, int32(deletedLength))
}

func readNoOpPayload(r *tagged.Reader, expected ItemType) error {
	itemType, err := r.DS.ReadUint8()
	if err != nil {
		return err
	}
	if itemType != uint8(expected) {
		return fmt.Errorf("%w: expected item_type 0x%02X, got 0x%02X", datastream.ErrValue, uint8(expected), itemType)
	}
	return nil
}

// SceneGroupItemBlock attaches a child Group to its parent's children
// sequence. The payload carries the child group's node id; it is absent
// (Item.Value == nil) for a deleted placeholder entry.
type SceneGroupItemBlock struct {
	ParentID datastream.CrdtId
	Item     crdt.Item[*datastream.CrdtId]
}

func (b *SceneGroupItemBlock) Type() BlockType                       { return BlockSceneGroupItem }
func (b *SceneGroupItemBlock) Versions(_ WriteOptions) (uint8, uint8) { return 0, 0 }

func (b *SceneGroupItemBlock) ReadBody(r *tagged.Reader, _ tagged.BlockInfo) error {
	var err error
	var itemID, leftID, rightID datastream.CrdtId
	var deletedLength uint32
	if b.ParentID, itemID, leftID, rightID, deletedLength, err = readItemFrame(r); err != nil {
		return err
	}
	b.Item.ItemID, b.Item.LeftID, b.Item.RightID, b.Item.DeletedLength = itemID, leftID, rightID, deletedLength
	if r.CheckTag(6, tagged.Length4) {
		sb, err := r.EnterSubblock(6)
		if err != nil {
			return err
		}
		perr := func() error {
			if perr := readNoOpPayload(r, ItemTypeGroup); perr != nil {
				return perr
			}
			childID, perr := r.ReadID(2)
			if perr != nil {
				return perr
			}
			b.Item.Value = &childID
			return nil
		}()
		if cerr := sb.Close(); cerr != nil && perr == nil {
			perr = cerr
		}
		if perr != nil {
			return perr
		}
	}
	return nil
}

func (b *SceneGroupItemBlock) WriteBody(w *tagged.Writer, _ WriteOptions) error {
	if err := writeItemFrame(w, b.ParentID, b.Item.ItemID, b.Item.LeftID, b.Item.RightID, b.Item.DeletedLength); err != nil {
		return err
	}
	if b.Item.Value == nil {
		return nil
	}
	return w.WithSubblock(6, nil, func(w *tagged.Writer) error {
		if err := w.DS.WriteUint8(uint8(ItemTypeGroup)); err != nil {
			return err
		}
		return w.WriteID(2, *b.Item.Value)
	})
}

// SceneTextItemBlock is the Text-kind SceneItem. Its payload carries no
// observed fields beyond the item-type discriminator.
type SceneTextItemBlock struct {
	ParentID datastream.CrdtId
	Item     crdt.Item[struct{}]
	HasValue bool
}

func (b *SceneTextItemBlock) Type() BlockType                       { return BlockSceneTextItem }
func (b *SceneTextItemBlock) Versions(_ WriteOptions) (uint8, uint8) { return 0, 0 }

func (b *SceneTextItemBlock) ReadBody(r *tagged.Reader, _ tagged.BlockInfo) error {
	var err error
	var itemID, leftID, rightID datastream.CrdtId
	var deletedLength uint32
	if b.ParentID, itemID, leftID, rightID, deletedLength, err = readItemFrame(r); err != nil {
		return err
	}
	b.Item.ItemID, b.Item.LeftID, b.Item.RightID, b.Item.DeletedLength = itemID, leftID, rightID, deletedLength
	if r.CheckTag(6, tagged.Length4) {
		sb, err := r.EnterSubblock(6)
		if err != nil {
			return err
		}
		perr := readNoOpPayload(r, ItemTypeText)
		if cerr := sb.Close(); cerr != nil && perr == nil {
			perr = cerr
		}
		if perr != nil {
			return perr
		}
		b.HasValue = true
	}
	return nil
}

func (b *SceneTextItemBlock) WriteBody(w *tagged.Writer, _ WriteOptions) error {
	if err := writeItemFrame(w, b.ParentID, b.Item.ItemID, b.Item.LeftID, b.Item.RightID, b.Item.DeletedLength); err != nil {
		return err
	}
	if !b.HasValue {
		return nil
	}
	return w.WithSubblock(6, nil, func(w *tagged.Writer) error {
		return w.DS.WriteUint8(uint8(ItemTypeText))
	})
}

// SceneTombstoneItemBlock marks a deleted scene item, preserved only to
// keep CRDT sequence ordering consistent.
type SceneTombstoneItemBlock struct {
	ParentID datastream.CrdtId
	Item     crdt.Item[struct{}]
}

func (b *SceneTombstoneItemBlock) Type() BlockType                       { return BlockSceneTombstoneItem }
func (b *SceneTombstoneItemBlock) Versions(_ WriteOptions) (uint8, uint8) { return 0, 0 }

func (b *SceneTombstoneItemBlock) ReadBody(r *tagged.Reader, _ tagged.BlockInfo) error {
	var err error
	var itemID, leftID, rightID datastream.CrdtId
	var deletedLength uint32
	if b.ParentID, itemID, leftID, rightID, deletedLength, err = readItemFrame(r); err != nil {
		return err
	}
	b.Item.ItemID, b.Item.LeftID, b.Item.RightID, b.Item.DeletedLength = itemID, leftID, rightID, deletedLength
	return nil
}

func (b *SceneTombstoneItemBlock) WriteBody(w *tagged.Writer, _ WriteOptions) error {
	return writeItemFrame(w, b.ParentID, b.Item.ItemID, b.Item.LeftID, b.Item.RightID, b.Item.DeletedLength)
}

// SceneLineItemBlock is the Line-kind SceneItem: a pen stroke.
type SceneLineItemBlock struct {
	ParentID datastream.CrdtId
	Item     crdt.Item[*Line]
}

func (b *SceneLineItemBlock) Type() BlockType { return BlockSceneLineItem }

func (b *SceneLineItemBlock) Versions(opts WriteOptions) (uint8, uint8) {
	if opts.After("3.0") {
		return 2, 2
	}
	return 1, 1
}

func (b *SceneLineItemBlock) ReadBody(r *tagged.Reader, info tagged.BlockInfo) error {
	var err error
	var itemID, leftID, rightID datastream.CrdtId
	var deletedLength uint32
	if b.ParentID, itemID, leftID, rightID, deletedLength, err = readItemFrame(r); err != nil {
		return err
	}
	b.Item.ItemID, b.Item.LeftID, b.Item.RightID, b.Item.DeletedLength = itemID, leftID, rightID, deletedLength
	if !r.CheckTag(6, tagged.Length4) {
		return nil
	}
	sb, err := r.EnterSubblock(6)
	if err != nil {
		return err
	}
	var line *Line
	perr := readNoOpPayload(r, ItemTypeLine)
	if perr == nil {
		line, perr = readLinePayload(r, sb, info.CurrentVersion)
	}
	if cerr := sb.Close(); cerr != nil && perr == nil {
		perr = cerr
	}
	if perr != nil {
		return perr
	}
	b.Item.Value = line
	return nil
}

func (b *SceneLineItemBlock) WriteBody(w *tagged.Writer, opts WriteOptions) error {
	if err := writeItemFrame(w, b.ParentID, b.Item.ItemID, b.Item.LeftID, b.Item.RightID, b.Item.DeletedLength); err != nil {
		return err
	}
	if b.Item.Value == nil {
		return nil
	}
	_, currentVersion := b.Versions(opts)
	return w.WithSubblock(6, nil, func(w *tagged.Writer) error {
		if err := w.DS.WriteUint8(uint8(ItemTypeLine)); err != nil {
			return err
		}
		return writeLinePayload(w, b.Item.Value, currentVersion)
	})
}

// SceneGlyphItemBlock is the Glyph-kind SceneItem: a highlighted text run.
type SceneGlyphItemBlock struct {
	ParentID datastream.CrdtId
	Item     crdt.Item[*GlyphRange]
}

func (b *SceneGlyphItemBlock) Type() BlockType                       { return BlockSceneGlyphItem }
func (b *SceneGlyphItemBlock) Versions(_ WriteOptions) (uint8, uint8) { return 0, 0 }

func (b *SceneGlyphItemBlock) ReadBody(r *tagged.Reader, _ tagged.BlockInfo) error {
	var err error
	var itemID, leftID, rightID datastream.CrdtId
	var deletedLength uint32
	if b.ParentID, itemID, leftID, rightID, deletedLength, err = readItemFrame(r); err != nil {
		return err
	}
	b.Item.ItemID, b.Item.LeftID, b.Item.RightID, b.Item.DeletedLength = itemID, leftID, rightID, deletedLength
	if !r.CheckTag(6, tagged.Length4) {
		return nil
	}
	sb, err := r.EnterSubblock(6)
	if err != nil {
		return err
	}
	var glyph *GlyphRange
	perr := readNoOpPayload(r, ItemTypeGlyph)
	if perr == nil {
		glyph, perr = readGlyphRangePayload(r)
	}
	if cerr := sb.Close(); cerr != nil && perr == nil {
		perr = cerr
	}
	if perr != nil {
		return perr
	}
	b.Item.Value = glyph
	return nil
}

func (b *SceneGlyphItemBlock) WriteBody(w *tagged.Writer, _ WriteOptions) error {
	if err := writeItemFrame(w, b.ParentID, b.Item.ItemID, b.Item.LeftID, b.Item.RightID, b.Item.DeletedLength); err != nil {
		return err
	}
	if b.Item.Value == nil {
		return nil
	}
	return w.WithSubblock(6, nil, func(w *tagged.Writer) error {
		if err := w.DS.WriteUint8(uint8(ItemTypeGlyph)); err != nil {
			return err
		}
		return writeGlyphRangePayload(w, b.Item.Value)
	})
}
