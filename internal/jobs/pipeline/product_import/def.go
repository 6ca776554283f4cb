package product_import

import (
	"gorm.io/gorm"

	"github.com/cataloghq/catalog-backend/internal/importer"
	"github.com/cataloghq/catalog-backend/internal/logger"
	"github.com/cataloghq/catalog-backend/internal/repos"
	"github.com/cataloghq/catalog-backend/internal/services"
	"github.com/cataloghq/catalog-backend/internal/types"
)

type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	sources  repos.ImportSourceRepo
	versions repos.ProductVersionRepo
	fetcher  *importer.Fetcher
	mapper   *importer.Mapper
	writer   services.VersionWriter
	search   services.SearchSyncPublisher
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	sources repos.ImportSourceRepo,
	versions repos.ProductVersionRepo,
	fetcher *importer.Fetcher,
	mapper *importer.Mapper,
	writer services.VersionWriter,
	search services.SearchSyncPublisher,
) *Pipeline {
	if search == nil {
		search = services.NopSearchSync{}
	}
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", types.JobTypeProductImport),
		sources:  sources,
		versions: versions,
		fetcher:  fetcher,
		mapper:   mapper,
		writer:   writer,
		search:   search,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeProductImport }
