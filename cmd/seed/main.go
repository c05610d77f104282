package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/joho/godotenv"

	"github.com/openshelf/circulation-backend/internal/catalog"
	"github.com/openshelf/circulation-backend/internal/patrons"
	"github.com/openshelf/circulation-backend/pkg/config"
	"github.com/openshelf/circulation-backend/pkg/db"
	"github.com/openshelf/circulation-backend/pkg/enums"
	"github.com/openshelf/circulation-backend/pkg/logger"
	"github.com/openshelf/circulation-backend/pkg/migrate"
	"github.com/openshelf/circulation-backend/pkg/snapshot"
)

var sampleWorks = []struct {
	Title  string
	Author string
}{
	{"The Art of Computer Programming", "Donald Knuth"},
	{"Design Patterns", "Erich Gamma"},
	{"Clean Code", "Robert C. Martin"},
	{"Refactoring", "Martin Fowler"},
	{"Introduction to Algorithms", "Thomas H. Cormen"},
	{"Head First Java", "Kathy Sierra"},
	{"Effective Java", "Joshua Bloch"},
	{"Domain-Driven Design", "Eric Evans"},
	{"The Pragmatic Programmer", "Andy Hunt"},
	{"Code Complete", "Steve McConnell"},
}

var samplePublishers = []string{
	"Addison-Wesley",
	"O'Reilly Media",
	"Prentice Hall",
	"Manning Publications",
	"MIT Press",
}

var sampleGenres = []string{
	"Computer Science",
	"Programming",
	"Software Engineering",
	"Algorithms",
	"Design Patterns",
}

var samplePatrons = []struct {
	Name  string
	Email string
	Tier  string
}{
	{"Ada Lovelace", "ada@openshelf.local", "FACULTY"},
	{"Grace Hopper", "grace@openshelf.local", "FACULTY"},
	{"Alan Kay", "alan@openshelf.local", "STUDENT"},
	{"Barbara Liskov", "barbara@openshelf.local", "STUDENT"},
	{"Dennis Ritchie", "dennis@openshelf.local", "STANDARD"},
	{"Ken Thompson", "ken@openshelf.local", "SENIOR"},
}

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "seed"})

	_ = godotenv.Load()

	copies := flag.Int("copies", 5, "copies created per work")
	seed := flag.Int64("seed", 1, "random seed for generated data")
	exportPath := flag.String("export", "", "write a snapshot of the seeded database to this file")
	importPath := flag.String("import", "", "restore a snapshot file instead of generating data")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "seed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "migrations", err)

	store := snapshot.NewStore(dbClient)

	if *importPath != "" {
		restoreSnapshot(ctx, logg, store, *importPath)
		return
	}

	seedDatabase(ctx, logg, dbClient, *copies, rand.New(rand.NewSource(*seed)))

	if *exportPath != "" {
		exportSnapshot(ctx, logg, store, *exportPath)
	}
}

func seedDatabase(ctx context.Context, logg *logger.Logger, dbClient *db.Client, copiesPerWork int, rng *rand.Rand) {
	catalogSvc, err := catalog.NewService(catalog.ServiceParams{
		CatalogRepo: catalog.NewRepository(dbClient.DB()),
	})
	requireResource(ctx, logg, "catalog service", err)

	patronSvc, err := patrons.NewService(patrons.ServiceParams{
		PatronRepo: patrons.NewRepository(dbClient.DB()),
	})
	requireResource(ctx, logg, "patron service", err)

	logg.Info(ctx, "starting library seeding")

	for i, sample := range sampleWorks {
		work, err := catalogSvc.CreateWork(ctx, catalog.CreateWorkInput{
			Title:           sample.Title,
			Author:          sample.Author,
			ISBN:            generateISBN(rng),
			Publisher:       samplePublishers[rng.Intn(len(samplePublishers))],
			PublicationYear: 2010 + rng.Intn(14),
			Genres:          sampleGenres[rng.Intn(len(sampleGenres))],
			Condition:       randomCondition(rng),
		})
		if err != nil {
			logg.Error(ctx, "failed to create work", err)
			os.Exit(1)
		}

		for j := 0; j < copiesPerWork; j++ {
			_, err := catalogSvc.AddCopy(ctx, catalog.AddCopyInput{
				WorkID:   work.ID,
				Barcode:  fmt.Sprintf("%s-%03d", work.ISBN, j+1),
				Location: generateLocation(rng),
			})
			if err != nil {
				logg.Error(ctx, "failed to create copy", err)
				os.Exit(1)
			}
		}

		logg.Info(ctx, fmt.Sprintf("created work %d/%d with %d copies: %s",
			i+1, len(sampleWorks), copiesPerWork, work.Title))
	}

	for _, sample := range samplePatrons {
		_, err := patronSvc.Register(ctx, patrons.RegisterInput{
			Name:  sample.Name,
			Email: sample.Email,
			Tier:  sample.Tier,
		})
		if err != nil {
			logg.Error(ctx, "failed to register patron", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "library seeding completed")
}

func restoreSnapshot(ctx context.Context, logg *logger.Logger, store *snapshot.Store, path string) {
	f, err := os.Open(path)
	requireResource(ctx, logg, "snapshot file", err)
	defer f.Close()

	snap, err := snapshot.Decode(f)
	requireResource(ctx, logg, "snapshot decode", err)

	err = store.Import(ctx, snap)
	requireResource(ctx, logg, "snapshot import", err)
	logg.Info(ctx, fmt.Sprintf("restored snapshot from %s", path))
}

func exportSnapshot(ctx context.Context, logg *logger.Logger, store *snapshot.Store, path string) {
	snap, err := store.Export(ctx)
	requireResource(ctx, logg, "snapshot export", err)

	f, err := os.Create(path)
	requireResource(ctx, logg, "snapshot file", err)
	defer f.Close()

	err = snapshot.Encode(f, snap)
	requireResource(ctx, logg, "snapshot encode", err)
	logg.Info(ctx, fmt.Sprintf("wrote snapshot to %s", path))
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

func generateISBN(rng *rand.Rand) string {
	digits := make([]byte, 10)
	for i := range digits {
		digits[i] = byte('0' + rng.Intn(10))
	}
	return string(digits)
}

func generateLocation(rng *rand.Rand) string {
	return fmt.Sprintf("%dF-CS-%03d", 1+rng.Intn(3), rng.Intn(100))
}

func randomCondition(rng *rand.Rand) string {
	conditions := []enums.ItemCondition{
		enums.ItemConditionNew,
		enums.ItemConditionGood,
		enums.ItemConditionWorn,
	}
	return string(conditions[rng.Intn(len(conditions))])
}
