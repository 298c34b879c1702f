package doctors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

const collection = "doctors"

var (
	// ErrNotFound indicates no doctor document exists for the id.
	ErrNotFound = errors.New("doctors: doctor not found")
	// ErrInvalidDoctor rejects admin writes missing required fields.
	ErrInvalidDoctor = errors.New("doctors: invalid doctor")
)

// Doctor is the profile shown in listings and copied onto appointments.
type Doctor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Specialty    string   `json:"specialty"`
	Contact      string   `json:"contact,omitempty"`
	Education    []string `json:"education,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	AvgRating    float64  `json:"avgRating,omitempty"`
	RatingsCount int      `json:"ratingsCount,omitempty"`
}

// Specialties splits the specialty string on , / | ; and the CJK comma.
func (d Doctor) Specialties() []string {
	parts := strings.FieldsFunc(d.Specialty, func(r rune) bool {
		switch r {
		case ',', '/', '|', ';', '、', '·':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Path returns the document path of a doctor.
func Path(id string) docstore.Path {
	return docstore.Doc(collection, id)
}

// ListOptions narrows and orders List results.
type ListOptions struct {
	Specialty string
	Tag       string
	SortBy    string // rating (default), reviews or name
}

// Repository reads and writes doctor documents.
type Repository struct {
	store  *docstore.Store
	logger *logging.Logger
}

// NewRepository creates a repository over store.
func NewRepository(store *docstore.Store, logger *logging.Logger) *Repository {
	if store == nil {
		panic("doctors: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Repository{store: store, logger: logger}
}

// Get returns one doctor.
func (r *Repository) Get(ctx context.Context, id string) (*Doctor, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	snap, err := r.store.Get(ctx, Path(id))
	if err != nil {
		return nil, fmt.Errorf("doctors: get %s: %w", id, err)
	}
	return decode(snap)
}

// GetTx reads a doctor inside a transaction.
func GetTx(ctx context.Context, tx *docstore.Tx, id string) (*Doctor, error) {
	snap, err := tx.Get(ctx, Path(id))
	if err != nil {
		return nil, fmt.Errorf("doctors: get %s: %w", id, err)
	}
	return decode(snap)
}

// List returns doctors matching opts.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]Doctor, error) {
	snaps, err := r.store.Query(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("doctors: list: %w", err)
	}
	wantSpecialty := strings.ToLower(strings.TrimSpace(opts.Specialty))
	wantTag := strings.ToLower(strings.TrimSpace(opts.Tag))

	out := make([]Doctor, 0, len(snaps))
	for _, snap := range snaps {
		d, err := decode(snap)
		if err != nil {
			r.logger.Warn("doctors: skipping undecodable document", "path", snap.Path.String(), "error", err)
			continue
		}
		if wantSpecialty != "" && !containsFold(d.Specialties(), wantSpecialty) {
			continue
		}
		if wantTag != "" && !containsFold(d.Tags, wantTag) {
			continue
		}
		out = append(out, *d)
	}
	sortDoctors(out, opts.SortBy)
	return out, nil
}

// Upsert replaces a doctor profile.
func (r *Repository) Upsert(ctx context.Context, d Doctor) error {
	d.ID = strings.TrimSpace(d.ID)
	d.Name = strings.TrimSpace(d.Name)
	if d.ID == "" || d.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidDoctor)
	}
	if !Path(d.ID).Valid() || strings.Contains(d.ID, "/") {
		return fmt.Errorf("%w: id %q", ErrInvalidDoctor, d.ID)
	}
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		tx.Set(Path(d.ID), d)
		return nil
	})
	if err != nil {
		return fmt.Errorf("doctors: upsert %s: %w", d.ID, err)
	}
	r.logger.Info("doctor profile saved", "doctor_id", d.ID)
	return nil
}

func decode(snap *docstore.Snapshot) (*Doctor, error) {
	if !snap.Exists() {
		return nil, ErrNotFound
	}
	var d Doctor
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = snap.Path.ID()
	}
	return &d, nil
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.ToLower(strings.TrimSpace(v)) == want {
			return true
		}
	}
	return false
}

func sortDoctors(list []Doctor, by string) {
	switch by {
	case "name":
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	case "reviews":
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].RatingsCount != list[j].RatingsCount {
				return list[i].RatingsCount > list[j].RatingsCount
			}
			return list[i].AvgRating > list[j].AvgRating
		})
	default:
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].AvgRating != list[j].AvgRating {
				return list[i].AvgRating > list[j].AvgRating
			}
			return list[i].RatingsCount > list[j].RatingsCount
		})
	}
}
