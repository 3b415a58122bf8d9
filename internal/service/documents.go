package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
	"github.com/iliyamo/dispatch-backoffice/internal/repository"
	"github.com/iliyamo/dispatch-backoffice/internal/storage"
)

// expiryWarningWindow is how far ahead compliance expiries are flagged.
const expiryWarningWindow = 30 * 24 * time.Hour

// Document states.
const (
	DocMissing  = "missing"
	DocOK       = "ok"
	DocExpiring = "expiring"
	DocExpired  = "expired"
)

// Company document kinds.  The insurance certificate uses DocInsurance.
const (
	DocAuthority = "authority"
	DocW9Company = "w9"
	DocLogo      = "logo"
)

// Documents is the document center: compliance files of the company, its
// fleet units and its loads.
type Documents struct{ *base }

// DocumentEntry is one slot of the document center.
type DocumentEntry struct {
	Kind   string     `json:"kind"`
	Ref    string     `json:"ref,omitempty"`
	Expiry *time.Time `json:"expiry,omitempty"`
	State  string     `json:"state"`
}

// OwnerDocuments groups the documents of one fleet unit or load.
type OwnerDocuments struct {
	ID    uint64          `json:"id"`
	Label string          `json:"label"`
	Docs  []DocumentEntry `json:"documents"`
}

// DocumentCenter is the full listing.
type DocumentCenter struct {
	Company  []DocumentEntry  `json:"company"`
	Fleet    []OwnerDocuments `json:"fleet"`
	Loads    []OwnerDocuments `json:"loads"`
	Warnings []string         `json:"warnings"`
}

func docState(ref string, expiry *time.Time, now time.Time) string {
	switch {
	case ref == "":
		return DocMissing
	case expiry == nil:
		return DocOK
	case !expiry.After(now):
		return DocExpired
	case expiry.Sub(now) <= expiryWarningWindow:
		return DocExpiring
	}
	return DocOK
}

func entry(kind, ref string, expiry *time.Time, now time.Time) DocumentEntry {
	return DocumentEntry{Kind: kind, Ref: ref, Expiry: expiry, State: docState(ref, expiry, now)}
}

// Center lists every document slot of the caller's company with its state.
func (d *Documents) Center(ctx context.Context, a Actor) (*DocumentCenter, error) {
	if err := requireTenant(a); err != nil {
		return nil, err
	}
	t, err := d.tenantOf(ctx, a)
	if err != nil {
		return nil, err
	}
	units, err := d.fleet.List(ctx, a.TenantID)
	if err != nil {
		return nil, err
	}
	loads, err := d.loads.List(ctx, a.TenantID, repository.LoadFilter{})
	if err != nil {
		return nil, err
	}
	now := d.now()

	c := &DocumentCenter{
		Company: []DocumentEntry{
			entry(DocAuthority, t.AuthorityDocRef, t.AuthorityExpiry, now),
			entry(DocInsurance, t.InsuranceDocRef, t.InsuranceExpiry, now),
			entry(DocW9Company, t.W9DocRef, nil, now),
			entry(DocLogo, t.LogoRef, nil, now),
		},
		Fleet:    make([]OwnerDocuments, 0, len(units)),
		Loads:    make([]OwnerDocuments, 0, len(loads)),
		Warnings: []string{},
	}
	for _, e := range c.Company {
		switch e.State {
		case DocExpired:
			c.Warnings = append(c.Warnings, fmt.Sprintf("%s document expired on %s", e.Kind, e.Expiry.Format("2006-01-02")))
		case DocExpiring:
			c.Warnings = append(c.Warnings, fmt.Sprintf("%s document expires on %s", e.Kind, e.Expiry.Format("2006-01-02")))
		}
	}
	for _, u := range units {
		c.Fleet = append(c.Fleet, OwnerDocuments{
			ID:    u.ID,
			Label: u.UnitNumber + " " + u.Name,
			Docs: []DocumentEntry{
				entry(DocCDL, u.CDLRef, nil, now),
				entry(DocMedicalCard, u.MedicalCardRef, nil, now),
				entry(DocRegistration, u.RegistrationRef, nil, now),
				entry(DocInsurance, u.InsuranceRef, nil, now),
				entry(DocIFTA, u.IFTARef, nil, now),
				entry(DocW9, u.W9Ref, nil, now),
			},
		})
	}
	for _, l := range loads {
		c.Loads = append(c.Loads, OwnerDocuments{
			ID:    l.ID,
			Label: l.Reference,
			Docs: []DocumentEntry{
				entry(DocRateConfirmation, l.RateConfirmationRef, nil, now),
				entry(DocBillOfLading, l.BillOfLadingRef, nil, now),
				entry(DocProofOfDelivery, l.ProofOfDeliveryRef, nil, now),
			},
		})
	}
	return c, nil
}

// AttachCompanyDocument stores a company compliance file.  expiry applies
// to the authority and insurance documents only.
func (d *Documents) AttachCompanyDocument(ctx context.Context, a Actor, kind, filename string, r io.Reader, expiry *time.Time) (*model.Tenant, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	if kind != DocAuthority && kind != DocInsurance && kind != DocW9Company && kind != DocLogo {
		return nil, invalid("kind", "unknown company document kind")
	}
	ref, err := d.store.Put(ctx, tenantFolder(a.TenantID, "company"), filename, r)
	if err != nil {
		return nil, storageErr(err)
	}

	var t *model.Tenant
	var old string
	err = d.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		if t, err = d.tenants.GetForUpdate(ctx, a.TenantID); err != nil {
			return err
		}
		switch kind {
		case DocAuthority:
			old, t.AuthorityDocRef = t.AuthorityDocRef, ref
			if expiry != nil {
				t.AuthorityExpiry = expiry
			}
		case DocInsurance:
			old, t.InsuranceDocRef = t.InsuranceDocRef, ref
			if expiry != nil {
				t.InsuranceExpiry = expiry
			}
		case DocW9Company:
			old, t.W9DocRef = t.W9DocRef, ref
		case DocLogo:
			old, t.LogoRef = t.LogoRef, ref
		}
		return d.tenants.Save(ctx, t)
	})
	if err != nil {
		d.discard(ctx, ref)
		return nil, err
	}
	d.discard(ctx, old)
	return t, nil
}

// Open returns a stored document of the caller's company.  References
// outside the company's folder are ErrNotFound.
func (d *Documents) Open(ctx context.Context, a Actor, ref string) (io.ReadCloser, error) {
	if err := requireTenant(a); err != nil {
		return nil, err
	}
	prefix := tenantFolder(a.TenantID) + "/"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return nil, ErrNotFound
	}
	rc, err := d.store.Open(ctx, ref)
	if errors.Is(err, storage.ErrBadRef) {
		return nil, ErrNotFound
	}
	return rc, err
}

func tenantFolder(tenantID uint64, parts ...string) string {
	return path.Join(append([]string{"tenants", strconv.FormatUint(tenantID, 10)}, parts...)...)
}

// storageErr turns upload rejections into validation errors.
func storageErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return invalid("file", "file too large")
	case errors.Is(err, storage.ErrUnsupportedType):
		return invalid("file", "only pdf and image files are accepted")
	}
	return err
}
