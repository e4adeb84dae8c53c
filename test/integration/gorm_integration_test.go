package integration

import (
	"context"
	"log"
	"os"
	"strconv"
	"testing"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/mapper"
	"course-advisor-be/internal/model"
	"course-advisor-be/internal/repository/unitofwork"
	"course-advisor-be/pkg/advisor/corpus"
	"course-advisor-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, true)
	require.NoError(t, err, "connect to DB")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
	return db
}

func dimensions() int {
	if d, err := strconv.Atoi(os.Getenv("EMBEDDING_DIMENSIONS")); err == nil && d > 0 {
		return d
	}
	return 1536
}

// axis points along dimension 0, tilted toward dimension i by weight.
func axis(i, dims int, weight float32) []float32 {
	v := make([]float32, dims)
	v[0] = 1
	v[i] = weight
	return v
}

func TestCourseRepository_VectorAndKeywordSearch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dims := dimensions()
	m := mapper.NewCourseMapper()

	suffix := uuid.NewString()[:8]
	fixtures := []*entity.Course{
		{Id: uuid.New(), Code: "ZQA 0001-" + suffix, Title: "Integration Near", Description: "zqaterm nearest", Embedding: axis(1, dims, 0.1)},
		{Id: uuid.New(), Code: "ZQA 0002-" + suffix, Title: "Integration Far", Description: "zqaterm farther", Embedding: axis(1, dims, 5)},
		{Id: uuid.New(), Code: "ZQA 0003-" + suffix, Title: "Integration Pending", Description: "zqaterm not embedded"},
	}
	for _, c := range fixtures {
		require.NoError(t, db.Create(m.ToModel(c)).Error)
	}
	t.Cleanup(func() {
		for _, c := range fixtures {
			db.Unscoped().Delete(&model.Course{}, "id = ?", c.Id)
		}
	})

	store := corpus.NewRepositoryStore(unitofwork.NewRepositoryFactory(db))

	t.Run("nearest neighbours are ordered by distance", func(t *testing.T) {
		candidates, err := store.NearestNeighbors(ctx, axis(1, dims, 0), 500)
		require.NoError(t, err)

		var order []string
		for _, c := range candidates {
			if c.Course.Code == fixtures[0].Code || c.Course.Code == fixtures[1].Code {
				order = append(order, c.Course.Code)
			}
			assert.NotEqual(t, fixtures[2].Code, c.Course.Code, "unembedded courses are excluded")
		}
		assert.Equal(t, []string{fixtures[0].Code, fixtures[1].Code}, order)
	})

	t.Run("keyword search includes unembedded courses", func(t *testing.T) {
		matches, err := store.KeywordSearch(ctx, []string{"zqaterm"})
		require.NoError(t, err)
		assert.Len(t, matches, 3)
	})

	t.Run("saving an embedding makes a course retrievable", func(t *testing.T) {
		pending, err := store.PendingEmbeddings(ctx)
		require.NoError(t, err)
		found := false
		for _, c := range pending {
			found = found || c.Id == fixtures[2].Id
		}
		require.True(t, found)

		require.NoError(t, store.SaveEmbedding(ctx, fixtures[2].Id, axis(2, dims, 1)))

		c, err := store.FindCourse(ctx, fixtures[2].Id)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Len(t, c.Embedding, dims)
		assert.NotNil(t, c.EmbeddedAt)
	})
}
