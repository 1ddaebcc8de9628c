package memory

import (
	"time"

	"capresearch/pkg/domain"

	"github.com/google/uuid"
)

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

func newID() string {
	return uuid.NewString()
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateCapability stores a new capability. Names are unique.
func (tx *transaction) CreateCapability(c Capability) (Capability, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.capabilities[c.ID]; exists {
		return Capability{}, domain.ErrConflict{Entity: domain.EntityCapability, Key: c.ID}
	}
	if _, exists := tx.Snapshot().FindCapabilityByName(c.Name); exists {
		return Capability{}, domain.ErrConflict{Entity: domain.EntityCapability, Key: c.Name}
	}
	if c.Status == "" {
		c.Status = domain.StatusNew
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.capabilities[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityCapability, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateCapability mutates a capability. A rename carries the tracker along.
func (tx *transaction) UpdateCapability(id string, mutator func(*Capability) error) (Capability, error) {
	current, ok := tx.state.capabilities[id]
	if !ok {
		return Capability{}, domain.ErrNotFound{Entity: domain.EntityCapability, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Capability{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if current.Name != before.Name {
		if other, exists := tx.Snapshot().FindCapabilityByName(current.Name); exists && other.ID != id {
			return Capability{}, domain.ErrConflict{Entity: domain.EntityCapability, Key: current.Name}
		}
		if tracker, ok := tx.state.trackers[before.Name]; ok {
			delete(tx.state.trackers, before.Name)
			tracker.CapabilityName = current.Name
			tx.state.trackers[current.Name] = tracker
		}
	}
	current.UpdatedAt = tx.now
	tx.state.capabilities[id] = current
	tx.recordChange(Change{Entity: domain.EntityCapability, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteCapability removes a capability and everything it owns.
func (tx *transaction) DeleteCapability(id string) error {
	current, ok := tx.state.capabilities[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityCapability, ID: id}
	}
	for sid, s := range tx.state.scores {
		if s.CapabilityID == id {
			delete(tx.state.scores, sid)
			tx.recordChange(Change{Entity: domain.EntityVendorScore, Action: domain.ActionDelete, Before: s})
		}
	}
	for aid, a := range tx.state.attributes {
		if a.CapabilityID == id {
			delete(tx.state.attributes, aid)
			tx.recordChange(Change{Entity: domain.EntityAttribute, Action: domain.ActionDelete, Before: a})
		}
	}
	for did, d := range tx.state.domains {
		if d.CapabilityID == id {
			delete(tx.state.domains, did)
			tx.recordChange(Change{Entity: domain.EntityDomain, Action: domain.ActionDelete, Before: d})
		}
	}
	if tracker, ok := tx.state.trackers[current.Name]; ok {
		delete(tx.state.trackers, current.Name)
		tx.recordChange(Change{Entity: domain.EntityTracker, Action: domain.ActionDelete, Before: tracker})
	}
	delete(tx.state.capabilities, id)
	tx.recordChange(Change{Entity: domain.EntityCapability, Action: domain.ActionDelete, Before: current})
	return nil
}

func (tx *transaction) requireCapability(id string) error {
	if _, ok := tx.state.capabilities[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityCapability, ID: id}
	}
	return nil
}

func (tx *transaction) findDomainByName(capabilityID, name string) (Domain, bool) {
	for _, d := range tx.state.domains {
		if d.CapabilityID == capabilityID && d.DomainName == name {
			return d, true
		}
	}
	return Domain{}, false
}

// UpsertDomain creates or updates a domain keyed by ID when present, otherwise
// by (capability, domain name). Renaming a domain moves its attributes.
func (tx *transaction) UpsertDomain(d Domain) (Domain, error) {
	if err := tx.requireCapability(d.CapabilityID); err != nil {
		return Domain{}, err
	}
	existing, found := tx.state.domains[d.ID]
	if found && existing.CapabilityID != d.CapabilityID {
		return Domain{}, domain.ErrNotFound{Entity: domain.EntityDomain, ID: d.ID}
	}
	if !found {
		existing, found = tx.findDomainByName(d.CapabilityID, d.DomainName)
	}
	if other, ok := tx.findDomainByName(d.CapabilityID, d.DomainName); ok && found && other.ID != existing.ID {
		return Domain{}, domain.ErrConflict{Entity: domain.EntityDomain, Key: d.DomainName}
	}

	if !found {
		if d.ID == "" {
			d.ID = newID()
		}
		d.CreatedAt = tx.now
		d.UpdatedAt = tx.now
		tx.state.domains[d.ID] = d
		tx.recordChange(Change{Entity: domain.EntityDomain, Action: domain.ActionCreate, After: d})
		return d, nil
	}

	d.ID = existing.ID
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = tx.now
	if d.DomainName != existing.DomainName {
		for aid, a := range tx.state.attributes {
			if a.CapabilityID == d.CapabilityID && a.DomainName == existing.DomainName {
				before := a
				a.DomainName = d.DomainName
				a.UpdatedAt = tx.now
				tx.state.attributes[aid] = a
				tx.recordChange(Change{Entity: domain.EntityAttribute, Action: domain.ActionUpdate, Before: before, After: a})
			}
		}
	}
	tx.state.domains[d.ID] = d
	tx.recordChange(Change{Entity: domain.EntityDomain, Action: domain.ActionUpdate, Before: existing, After: d})
	return d, nil
}

// DeleteDomain removes a domain with its attributes and their vendor scores.
func (tx *transaction) DeleteDomain(id string) error {
	current, ok := tx.state.domains[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityDomain, ID: id}
	}
	for aid, a := range tx.state.attributes {
		if a.CapabilityID == current.CapabilityID && a.DomainName == current.DomainName {
			tx.removeAttribute(aid, a)
		}
	}
	delete(tx.state.domains, id)
	tx.recordChange(Change{Entity: domain.EntityDomain, Action: domain.ActionDelete, Before: current})
	return nil
}

func (tx *transaction) findAttributeByKey(capabilityID, domainName, attributeName string) (Attribute, bool) {
	for _, a := range tx.state.attributes {
		if a.CapabilityID == capabilityID && a.DomainName == domainName && a.AttributeName == attributeName {
			return a, true
		}
	}
	return Attribute{}, false
}

// UpsertAttribute creates or replaces an attribute keyed by (capability, domain, name).
func (tx *transaction) UpsertAttribute(a Attribute) (Attribute, error) {
	if err := tx.requireCapability(a.CapabilityID); err != nil {
		return Attribute{}, err
	}
	existing, found := tx.findAttributeByKey(a.CapabilityID, a.DomainName, a.AttributeName)
	if !found {
		if a.ID == "" {
			a.ID = newID()
		}
		if _, clash := tx.state.attributes[a.ID]; clash {
			return Attribute{}, domain.ErrConflict{Entity: domain.EntityAttribute, Key: a.ID}
		}
		a.CreatedAt = tx.now
		a.UpdatedAt = tx.now
		tx.state.attributes[a.ID] = a
		tx.recordChange(Change{Entity: domain.EntityAttribute, Action: domain.ActionCreate, After: a})
		return a, nil
	}
	a.ID = existing.ID
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = tx.now
	tx.state.attributes[a.ID] = a
	tx.recordChange(Change{Entity: domain.EntityAttribute, Action: domain.ActionUpdate, Before: existing, After: a})
	return a, nil
}

// UpdateAttribute mutates an attribute by ID, keeping its natural key unique.
func (tx *transaction) UpdateAttribute(id string, mutator func(*Attribute) error) (Attribute, error) {
	current, ok := tx.state.attributes[id]
	if !ok {
		return Attribute{}, domain.ErrNotFound{Entity: domain.EntityAttribute, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Attribute{}, err
	}
	current.ID = id
	current.CapabilityID = before.CapabilityID
	current.CreatedAt = before.CreatedAt
	if other, exists := tx.findAttributeByKey(current.CapabilityID, current.DomainName, current.AttributeName); exists && other.ID != id {
		return Attribute{}, domain.ErrConflict{Entity: domain.EntityAttribute, Key: current.DomainName + "/" + current.AttributeName}
	}
	current.UpdatedAt = tx.now
	tx.state.attributes[id] = current
	tx.recordChange(Change{Entity: domain.EntityAttribute, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteAttribute removes an attribute and the vendor scores that reference it.
func (tx *transaction) DeleteAttribute(id string) error {
	current, ok := tx.state.attributes[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityAttribute, ID: id}
	}
	tx.removeAttribute(id, current)
	return nil
}

// removeAttribute drops the attribute. Vendor scores reference attributes by
// name, so they go only when no other attribute of the capability shares it.
func (tx *transaction) removeAttribute(id string, a Attribute) {
	delete(tx.state.attributes, id)
	tx.recordChange(Change{Entity: domain.EntityAttribute, Action: domain.ActionDelete, Before: a})
	for _, other := range tx.state.attributes {
		if other.CapabilityID == a.CapabilityID && other.AttributeName == a.AttributeName {
			return
		}
	}
	for sid, s := range tx.state.scores {
		if s.CapabilityID == a.CapabilityID && s.AttributeName == a.AttributeName {
			delete(tx.state.scores, sid)
			tx.recordChange(Change{Entity: domain.EntityVendorScore, Action: domain.ActionDelete, Before: s})
		}
	}
}

// UpsertVendorScore writes the score for (capability, attribute, vendor). An
// existing score for the same triple is replaced in place.
func (tx *transaction) UpsertVendorScore(s VendorScore) (VendorScore, error) {
	if err := tx.requireCapability(s.CapabilityID); err != nil {
		return VendorScore{}, err
	}
	s = cloneVendorScore(s)
	for _, existing := range tx.state.scores {
		if existing.CapabilityID != s.CapabilityID || existing.AttributeName != s.AttributeName || existing.Vendor != s.Vendor {
			continue
		}
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
		s.UpdatedAt = tx.now
		tx.state.scores[s.ID] = s
		tx.recordChange(Change{Entity: domain.EntityVendorScore, Action: domain.ActionUpdate, Before: existing, After: cloneVendorScore(s)})
		return cloneVendorScore(s), nil
	}
	if s.ID == "" {
		s.ID = newID()
	}
	if _, clash := tx.state.scores[s.ID]; clash {
		return VendorScore{}, domain.ErrConflict{Entity: domain.EntityVendorScore, Key: s.ID}
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.scores[s.ID] = s
	tx.recordChange(Change{Entity: domain.EntityVendorScore, Action: domain.ActionCreate, After: cloneVendorScore(s)})
	return cloneVendorScore(s), nil
}

// DeleteVendorScore removes a single vendor score.
func (tx *transaction) DeleteVendorScore(id string) error {
	current, ok := tx.state.scores[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityVendorScore, ID: id}
	}
	delete(tx.state.scores, id)
	tx.recordChange(Change{Entity: domain.EntityVendorScore, Action: domain.ActionDelete, Before: current})
	return nil
}

// UpsertTracker applies mutator to the tracker of the named capability,
// creating it with cleared flags when absent.
func (tx *transaction) UpsertTracker(capabilityName string, mutator func(*CapabilityTracker) error) (CapabilityTracker, error) {
	if _, ok := tx.Snapshot().FindCapabilityByName(capabilityName); !ok {
		return CapabilityTracker{}, domain.ErrNotFound{Entity: domain.EntityCapability, ID: capabilityName}
	}
	current, existed := tx.state.trackers[capabilityName]
	before := current
	if !existed {
		current = CapabilityTracker{CapabilityName: capabilityName}
	}
	if mutator != nil {
		if err := mutator(&current); err != nil {
			return CapabilityTracker{}, err
		}
	}
	current.CapabilityName = capabilityName
	current.LastUpdated = tx.now
	tx.state.trackers[capabilityName] = current
	action := domain.ActionUpdate
	var prior any = before
	if !existed {
		action = domain.ActionCreate
		prior = nil
	}
	tx.recordChange(Change{Entity: domain.EntityTracker, Action: action, Before: prior, After: current})
	return current, nil
}
