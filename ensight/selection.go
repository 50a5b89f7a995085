package ensight

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/ansys/pyensight-sub000/protocol"
)

// group state machine per class noun:
//
//	select_begin ... select_end
//	modify_begin ... modify_end
//	begin        ... end
//
// open groups form a LIFO stack. nesting groups of different classes is fine;
// opening a second group for a class that already has one open, or closing
// anything but the innermost open group, is a ProtocolSequence error raised
// before any wire traffic.
type GroupKind string

const (
	GroupSelect GroupKind = "select"
	GroupModify GroupKind = "modify"
	GroupBatch  GroupKind = "batch"
)

type Group struct {
	Class string
	Kind  GroupKind
}

// Selection is a snapshot of the controller state: per-class selected ids in
// insertion order, per-class default-target mode, and the open group stack
// outermost first.
type Selection struct {
	Selected    map[string][]ObjectId
	DefaultMode map[string]bool
	Open        []Group
}

// selectionController owns the client mirror of the engine's selection and
// journal framing state. Every verb validates locally, round-trips the
// journal command, and commits the mirror only on engine success. The state
// lock is held across the round trip; together with the session's single
// outstanding command this serializes verbs.
type selectionController struct {
	session *Session

	stateLock sync.Mutex

	open        []Group
	openClasses map[string]bool

	selected     map[string][]ObjectId
	selectedSets map[string]map[ObjectId]bool
	defaultMode  map[string]bool
}

func newSelectionController(session *Session) *selectionController {
	return &selectionController{
		session:      session,
		open:         []Group{},
		openClasses:  map[string]bool{},
		selected:     map[string][]ObjectId{},
		selectedSets: map[string]map[ObjectId]bool{},
		defaultMode:  map[string]bool{},
	}
}

func (self *selectionController) snapshot() Selection {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	selected := map[string][]ObjectId{}
	for class, ids := range self.selected {
		selected[class] = slices.Clone(ids)
	}
	defaultMode := map[string]bool{}
	for class, on := range self.defaultMode {
		if on {
			defaultMode[class] = true
		}
	}
	return Selection{
		Selected:    selected,
		DefaultMode: defaultMode,
		Open:        slices.Clone(self.open),
	}
}

func (self *selectionController) openGroup(ctx context.Context, class string, kind GroupKind, verb string, ids []ObjectId) (int, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.openClasses[class] {
		return int(protocol.StatusSequence), sequenceError(
			"%s: %s while a %s group is already open", class, verb, class)
	}

	status, err := self.issue(ctx, class, verb, ids)
	if err != nil || status != protocol.StatusOk {
		return self.session.commandResult(status, err)
	}

	self.open = append(self.open, Group{Class: class, Kind: kind})
	self.openClasses[class] = true
	if kind == GroupSelect {
		self.replaceSelection(class, ids)
		self.defaultMode[class] = false
	}
	return self.session.commandResult(status, nil)
}

func (self *selectionController) closeGroup(ctx context.Context, class string, kind GroupKind, verb string) (int, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if len(self.open) == 0 {
		return int(protocol.StatusSequence), sequenceError(
			"%s: %s with no open group", class, verb)
	}
	innermost := self.open[len(self.open)-1]
	if innermost.Class != class || innermost.Kind != kind {
		return int(protocol.StatusSequence), sequenceError(
			"%s: %s does not close the innermost group (%s %s)",
			class, verb, innermost.Class, innermost.Kind)
	}

	status, err := self.issue(ctx, class, verb, nil)
	if err != nil || status != protocol.StatusOk {
		return self.session.commandResult(status, err)
	}

	self.open = self.open[:len(self.open)-1]
	delete(self.openClasses, class)
	return self.session.commandResult(status, nil)
}

func (self *selectionController) adjustSelection(ctx context.Context, class string, verb string, ids []ObjectId) (int, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if !self.hasOpenGroup(class, GroupSelect) {
		return int(protocol.StatusSequence), sequenceError(
			"%s: %s with no open select group", class, verb)
	}

	status, err := self.issue(ctx, class, verb, ids)
	if err != nil || status != protocol.StatusOk {
		return self.session.commandResult(status, err)
	}

	switch verb {
	case "select_add":
		self.addSelection(class, ids)
	case "select_remove":
		self.removeSelection(class, ids)
	}
	return self.session.commandResult(status, nil)
}

func (self *selectionController) selectDefault(ctx context.Context, class string) (int, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	status, err := self.issue(ctx, class, "select_default", nil)
	if err != nil || status != protocol.StatusOk {
		return self.session.commandResult(status, err)
	}

	self.defaultMode[class] = true
	self.replaceSelection(class, nil)
	return self.session.commandResult(status, nil)
}

// createCore materializes a concrete object from the class defaults. The
// engine answers with the new id and selects the new object; the mirror
// follows. The error is transport/encoding only; engine rejection is the
// status.
func (self *selectionController) createCore(ctx context.Context, class string) (*Proxy, int32, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	response, status, err := self.session.journalCommand(ctx, class, "create", nil)
	if err != nil {
		return nil, status, err
	}
	if status != protocol.StatusOk {
		return nil, status, nil
	}

	proxy := self.session.registry.Resolve(ClassForNoun(class), ObjectId(response.CreatedId))
	self.replaceSelection(class, []ObjectId{proxy.Id()})
	self.defaultMode[class] = false
	return proxy, status, nil
}

// create is the typed surface: engine rejection is always an error here,
// since there is no proxy to return.
func (self *selectionController) create(ctx context.Context, class string) (*Proxy, error) {
	proxy, status, err := self.createCore(ctx, class)
	if err != nil {
		return nil, err
	}
	if status != protocol.StatusOk {
		return nil, statusError(status, self.session.LastMessage(), RenderCommand(class, "create", nil))
	}
	return proxy, nil
}

// deleteSelected removes the selected objects of a class. The engine
// broadcasts ObjectDeleted per object, which drives the registry forgets;
// the selection mirror empties on success.
func (self *selectionController) deleteSelected(ctx context.Context, class string) (int, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	status, err := self.issue(ctx, class, "delete", nil)
	if err != nil || status != protocol.StatusOk {
		return self.session.commandResult(status, err)
	}

	self.replaceSelection(class, nil)
	return self.session.commandResult(status, nil)
}

// issue sends one journal verb. ids ride as numeric arguments.
func (self *selectionController) issue(ctx context.Context, class string, verb string, ids []ObjectId) (int32, error) {
	args := make([]protocol.Value, len(ids))
	for i, id := range ids {
		args[i] = protocol.Number(float64(id))
	}
	_, status, err := self.session.journalCommand(ctx, class, verb, args)
	return status, err
}

func (self *selectionController) selectedIds(class string) []ObjectId {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return slices.Clone(self.selected[class])
}

func (self *selectionController) hasOpenGroup(class string, kind GroupKind) bool {
	for _, group := range self.open {
		if group.Class == class && group.Kind == kind {
			return true
		}
	}
	return false
}

// must be called with `stateLock`
func (self *selectionController) replaceSelection(class string, ids []ObjectId) {
	self.selected[class] = nil
	self.selectedSets[class] = map[ObjectId]bool{}
	self.addSelection(class, ids)
}

// must be called with `stateLock`
func (self *selectionController) addSelection(class string, ids []ObjectId) {
	set := self.selectedSets[class]
	if set == nil {
		set = map[ObjectId]bool{}
		self.selectedSets[class] = set
	}
	for _, id := range ids {
		if !set[id] {
			set[id] = true
			self.selected[class] = append(self.selected[class], id)
		}
	}
}

// must be called with `stateLock`
func (self *selectionController) removeSelection(class string, ids []ObjectId) {
	set := self.selectedSets[class]
	if set == nil {
		return
	}
	for _, id := range ids {
		if set[id] {
			delete(set, id)
			if i := slices.Index(self.selected[class], id); 0 <= i {
				self.selected[class] = slices.Delete(self.selected[class], i, i+1)
			}
		}
	}
}

// journalVerb returns the controller handler for commands that must not
// bypass the state machine, keyed by journal verb name.
func (self *selectionController) journalVerb(ctx context.Context, class string, verb string, args []any) (int, error, bool) {
	switch verb {
	case "select_begin", "select_add", "select_remove":
		ids, err := idArgs(args)
		if err != nil {
			return 0, err, true
		}
		switch verb {
		case "select_begin":
			status, err := self.openGroup(ctx, class, GroupSelect, verb, ids)
			return status, err, true
		default:
			status, err := self.adjustSelection(ctx, class, verb, ids)
			return status, err, true
		}
	case "select_end":
		status, err := self.closeGroup(ctx, class, GroupSelect, verb)
		return status, err, true
	case "select_default":
		status, err := self.selectDefault(ctx, class)
		return status, err, true
	case "modify_begin":
		status, err := self.openGroup(ctx, class, GroupModify, verb, nil)
		return status, err, true
	case "modify_end":
		status, err := self.closeGroup(ctx, class, GroupModify, verb)
		return status, err, true
	case "begin":
		status, err := self.openGroup(ctx, class, GroupBatch, verb, nil)
		return status, err, true
	case "end":
		status, err := self.closeGroup(ctx, class, GroupBatch, verb)
		return status, err, true
	case "create":
		_, status, err := self.createCore(ctx, class)
		if err != nil {
			return int(status), err, true
		}
		result, resultErr := self.session.commandResult(status, nil)
		return result, resultErr, true
	case "delete":
		status, err := self.deleteSelected(ctx, class)
		return status, err, true
	default:
		return 0, nil, false
	}
}

func idArgs(args []any) ([]ObjectId, error) {
	ids := make([]ObjectId, 0, len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case ObjectId:
			ids = append(ids, v)
		case int:
			ids = append(ids, ObjectId(v))
		case int64:
			ids = append(ids, ObjectId(v))
		case uint64:
			ids = append(ids, ObjectId(v))
		case float64:
			ids = append(ids, ObjectId(v))
		case *Proxy:
			ids = append(ids, v.Id())
		default:
			return nil, encodingError("selection ids must be numeric, got %T", arg)
		}
	}
	return ids, nil
}

// ClassForNoun maps a journal noun to its object class: part -> ENS_PART.
func ClassForNoun(noun string) string {
	return "ENS_" + strings.ToUpper(noun)
}
