package services

import (
	"context"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/records"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CompanyService stores companies.
type CompanyService struct {
	base
}

func NewCompanyService(store ports.Store, logger *zap.Logger) *CompanyService {
	return &CompanyService{base: newBase(store, logger, "companies")}
}

// Create stores a new active company owned by createdBy.
func (s *CompanyService) Create(ctx context.Context, in entities.CreateCompanyInput, createdBy string) (entities.Company, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return entities.Company{}, err
	}
	rec, err := records.NewCompany(entities.Company{
		ID:          s.newID(),
		Name:        in.Name,
		Description: in.Description,
		IsActive:    true,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return entities.Company{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.Company{}, err
	}
	s.logger.Info("Company created", zap.String("companyID", created.ID))
	return created.Entity(), nil
}

func (s *CompanyService) GetByID(ctx context.Context, id string) (entities.Company, error) {
	rec, err := getAs[records.Company](ctx, s.store, "company", keys.CompanyKey(id))
	if err != nil {
		return entities.Company{}, err
	}
	return rec.Entity(), nil
}

// ListAll reads the global company listing.
func (s *CompanyService) ListAll(ctx context.Context) ([]entities.Company, error) {
	recs, err := queryIndexAs[records.Company](ctx, s.store, keys.IndexA, keys.PartitionAllCompanies, storage.AnySort, 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.Company.Entity), nil
}

func (s *CompanyService) ListActive(ctx context.Context) ([]entities.Company, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterSlice(all, func(c entities.Company) bool { return c.IsActive }), nil
}

func (s *CompanyService) ListByCreator(ctx context.Context, createdBy string) ([]entities.Company, error) {
	recs, err := queryIndexAs[records.Company](ctx, s.store, keys.IndexB, keys.CreatedByPartition(createdBy), storage.SortBeginsWith(string(keys.EntityCompany)+"#"), 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.Company.Entity), nil
}

// ListForTeamManager returns the active companies of the teams a manager
// runs. Company reads fan out concurrently.
func (s *CompanyService) ListForTeamManager(ctx context.Context, managerID string) ([]entities.Company, error) {
	teams, err := queryIndexAs[records.Team](ctx, s.store, keys.IndexB, keys.ManagerPartition(managerID), storage.AnySort, 0)
	if err != nil {
		return nil, err
	}
	var ids []string
	seen := make(map[string]struct{}, len(teams))
	for _, t := range teams {
		if _, ok := seen[t.CompanyID]; ok {
			continue
		}
		seen[t.CompanyID] = struct{}{}
		ids = append(ids, t.CompanyID)
	}

	found := make([]*entities.Company, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			c, err := s.GetByID(gctx, id)
			if err != nil {
				if isNotFound(err) {
					s.logger.Warn("Team references a missing company", zap.String("companyID", id))
					return nil
				}
				return err
			}
			found[i] = &c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]entities.Company, 0, len(found))
	for _, c := range found {
		if c != nil && c.IsActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *CompanyService) Update(ctx context.Context, id string, upd entities.CompanyUpdate) (entities.Company, error) {
	set := storage.NewUpdate()
	setString(set, "name", upd.Name)
	setString(set, "description", upd.Description)
	setBool(set, records.AttrIsActive, upd.IsActive)
	rec, err := updateAs[records.Company](ctx, s.store, "company", keys.CompanyKey(id), set)
	if err != nil {
		return entities.Company{}, err
	}
	return rec.Entity(), nil
}

func (s *CompanyService) Delete(ctx context.Context, id string) error {
	p := keys.CompanyKey(id)
	return s.store.Delete(ctx, p.PK, p.SK)
}
