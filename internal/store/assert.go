package store

import (
	"github.com/ibasketcal/core/internal/store/edgesql"
	"github.com/ibasketcal/core/internal/store/filedb"
	"github.com/ibasketcal/core/internal/store/rowstore"
)

var (
	_ Store = (*filedb.DB)(nil)
	_ Store = (*rowstore.DB)(nil)
	_ Store = (*edgesql.DB)(nil)
)
