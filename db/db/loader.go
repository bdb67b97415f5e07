package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/vikstrous/dataloadgen"
)

type dataLoaderKey string

const (
	DataLoaderKeyGroupData dataLoaderKey = "group_data_loader"
)

// GroupDataLoader batches the per expense and per group lookups of one request.
type GroupDataLoader struct {
	GetExpenseShares *dataloadgen.Loader[uuid.UUID, []Share]
	GetGroupMembers  *dataloadgen.Loader[uuid.UUID, []Member]
}

func NewGroupDataLoader(dbWrapper GroupDBWrapper) *GroupDataLoader {
	return &GroupDataLoader{
		GetExpenseShares: dataloadgen.NewMappedLoader(dbWrapper.DataLoaderGetExpenseShares),
		GetGroupMembers:  dataloadgen.NewMappedLoader(dbWrapper.DataLoaderGetGroupMembers),
	}
}

func WithDataLoader(ctx context.Context, loader *GroupDataLoader) context.Context {
	return context.WithValue(ctx, DataLoaderKeyGroupData, loader)
}

// DataLoaderFrom returns the loader carried by ctx, or a fresh one over dbWrapper.
func DataLoaderFrom(ctx context.Context, dbWrapper GroupDBWrapper) *GroupDataLoader {
	if loader, ok := ctx.Value(DataLoaderKeyGroupData).(*GroupDataLoader); ok {
		return loader
	}
	return NewGroupDataLoader(dbWrapper)
}
