package mir

import "sort"

// ObjectKind classifies a FrameObject.
type ObjectKind byte

const (
	ObjectLocalVar ObjectKind = iota
	ObjectSpillSlot
)

// FrameObject is one stack-resident object: a local variable (from an
// `alloca`) or a register-allocator spill slot.
type FrameObject struct {
	Size      int
	Alignment int
	Offset    int // -1 until CalculateOffsets() has run
	Kind      ObjectKind
}

// FrameInfo tracks every stack-resident object of one function and assigns
// them offsets.
type FrameInfo struct {
	irRegToObject map[uint32]*FrameObject
	spillSlots    []*FrameObject
	paramAreaSize int
	baseAlign     int
	needsFP       bool
}

// SetNeedsFP marks the frame as requiring a materialized frame pointer even
// if the function is otherwise a leaf, because it addresses incoming
// stack-passed arguments relative to FP.
func (fi *FrameInfo) SetNeedsFP() { fi.needsFP = true }

// NeedsFP reports whether frame lowering must establish FP regardless of the
// function's leaf-ness.
func (fi *FrameInfo) NeedsFP() bool { return fi.needsFP }

// NewFrameInfo returns an empty FrameInfo with the ABI's default base
// alignment of 16 bytes.
func NewFrameInfo() *FrameInfo {
	return &FrameInfo{
		irRegToObject: make(map[uint32]*FrameObject),
		baseAlign:     16,
	}
}

func alignTo(v, a int) int { return (v + (a - 1)) &^ (a - 1) }

// CreateLocalObject records a LocalVar frame object for the alloca result
// register irRegID. Alignment is clamped to at least 16 bytes.
func (fi *FrameInfo) CreateLocalObject(irRegID uint32, size, alignment int) {
	if alignment < 16 {
		alignment = 16
	}
	fi.irRegToObject[irRegID] = &FrameObject{Size: size, Alignment: alignment, Offset: -1, Kind: ObjectLocalVar}
}

// CreateSpillSlot appends a new SpillSlot object and returns its index
// (used as a FrameIndex). Alignment is clamped to at least 8 bytes.
func (fi *FrameInfo) CreateSpillSlot(size, alignment int) int {
	if alignment < 8 {
		alignment = 8
	}
	idx := len(fi.spillSlots)
	fi.spillSlots = append(fi.spillSlots, &FrameObject{Size: size, Alignment: alignment, Offset: -1, Kind: ObjectSpillSlot})
	return idx
}

// HasObject reports whether irRegID has a recorded LocalVar object.
func (fi *FrameInfo) HasObject(irRegID uint32) bool {
	_, ok := fi.irRegToObject[irRegID]
	return ok
}

// ObjectOffset returns the offset of the LocalVar object for irRegID, or -1
// if it has none or CalculateOffsets hasn't run yet.
func (fi *FrameInfo) ObjectOffset(irRegID uint32) int {
	o, ok := fi.irRegToObject[irRegID]
	if !ok {
		return -1
	}
	return o.Offset
}

// SpillSlotOffset returns the offset of spill slot index idx, or -1 if out
// of range or CalculateOffsets hasn't run yet.
func (fi *FrameInfo) SpillSlotOffset(idx int) int {
	if idx < 0 || idx >= len(fi.spillSlots) {
		return -1
	}
	return fi.spillSlots[idx].Offset
}

// SetParamAreaSize grows the outgoing-parameter area to at least bytes,
// 16-byte aligned.
func (fi *FrameInfo) SetParamAreaSize(bytes int) {
	aligned := alignTo(bytes, 16)
	if aligned > fi.paramAreaSize {
		fi.paramAreaSize = aligned
	}
}

// ParamAreaSize returns the outgoing-parameter area size.
func (fi *FrameInfo) ParamAreaSize() int { return fi.paramAreaSize }

// BaseAlignment returns the frame's overall alignment requirement.
func (fi *FrameInfo) BaseAlignment() int { return fi.baseAlign }

// CalculateOffsets assigns a non-negative offset to every frame object:
// starting at the outgoing-params area, each object is aligned then placed
// contiguously (local vars first, then spill slots); the total is rounded up
// to BaseAlignment. Returns the total frame size.
func (fi *FrameInfo) CalculateOffsets() int {
	cur := fi.paramAreaSize
	regIDs := make([]uint32, 0, len(fi.irRegToObject))
	for id := range fi.irRegToObject {
		regIDs = append(regIDs, id)
	}
	sort.Slice(regIDs, func(i, j int) bool { return regIDs[i] < regIDs[j] })
	for _, id := range regIDs {
		obj := fi.irRegToObject[id]
		cur = alignTo(cur, obj.Alignment)
		obj.Offset = cur
		cur += obj.Size
	}
	for _, slot := range fi.spillSlots {
		cur = alignTo(cur, slot.Alignment)
		slot.Offset = cur
		cur += slot.Size
	}
	return alignTo(cur, fi.baseAlign)
}

// StackSize returns the frame size as of the most recent CalculateOffsets
// call (or the param-area size alone if it hasn't run).
func (fi *FrameInfo) StackSize() int {
	max := fi.paramAreaSize
	for _, obj := range fi.irRegToObject {
		if obj.Offset >= 0 && obj.Offset+obj.Size > max {
			max = obj.Offset + obj.Size
		}
	}
	for _, slot := range fi.spillSlots {
		if slot.Offset >= 0 && slot.Offset+slot.Size > max {
			max = slot.Offset + slot.Size
		}
	}
	return alignTo(max, fi.baseAlign)
}

// NumSpillSlots returns how many spill slots have been created.
func (fi *FrameInfo) NumSpillSlots() int { return len(fi.spillSlots) }
