// Command seed fills a store with demo vehicles, drivers, trips and an
// admin account, going through the automation engine so that every record
// obeys the same rules as the API.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/ukydev/fleet-automation/internal/auth"
	"github.com/ukydev/fleet-automation/internal/automation"
	"github.com/ukydev/fleet-automation/internal/config"
	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/models"
)

type options struct {
	store         string
	mongoURI      string
	mongoDB       string
	vehicles      int
	drivers       int
	trips         int
	randSeed      int64
	adminUser     string
	adminPassword string
	logLevel      string
}

func parseFlags(args []string, defaults config.Config) (options, error) {
	var o options
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.StringVar(&o.store, "store", defaults.StoreDriver, "store driver: mongo or memory")
	fs.StringVar(&o.mongoURI, "mongo-uri", defaults.MongoURI, "MongoDB connection string")
	fs.StringVar(&o.mongoDB, "mongo-db", defaults.MongoDB, "MongoDB database name")
	fs.IntVarP(&o.vehicles, "vehicles", "v", 6, "number of vehicles to register")
	fs.IntVarP(&o.drivers, "drivers", "d", 5, "number of drivers to register")
	fs.IntVarP(&o.trips, "trips", "t", 8, "number of trips to plan")
	fs.Int64Var(&o.randSeed, "seed", time.Now().UnixNano(), "random seed")
	fs.StringVar(&o.adminUser, "admin-user", "admin", "username of the admin account, empty to skip")
	fs.StringVar(&o.adminPassword, "admin-password", "changeme123", "password of the admin account")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.vehicles < 0 || o.drivers < 0 || o.trips < 0 {
		return o, errors.New("--vehicles, --drivers and --trips must not be negative")
	}
	if o.trips > 0 && (o.vehicles == 0 || o.drivers == 0) {
		return o, errors.New("planning trips needs at least one vehicle and one driver")
	}
	return o, nil
}

var vehicleModels = []struct {
	name     string
	kind     models.VehicleType
	capacity float64
	prefix   string
}{
	{"Volvo FH16", models.VehicleTruck, 18000, "TRK"},
	{"Ford Transit", models.VehicleVan, 1200, "VAN"},
	{"Mercedes Sprinter", models.VehicleVan, 1500, "VAN"},
	{"Scania R450", models.VehicleTruck, 20000, "TRK"},
	{"Yamaha Cargo", models.VehicleBike, 60, "BKE"},
}

var driverNames = []string{"Asha Patel", "Tomas Berg", "Lena Ivanova", "Marco Rossi", "Kofi Mensah", "Yuki Tanaka", "Sara Haddad"}

var places = []string{"North Depot", "Harbour Gate 4", "Airport Cargo", "City Market", "Riverside Mall", "Industrial Park", "Central Station"}

// summary counts what a seed run created.
type summary struct {
	Vehicles  int
	Drivers   int
	Trips     int
	Completed int
	Expenses  int
	Skipped   int
}

type seeder struct {
	engine *automation.Engine
	users  db.UserCollection
	auth   *auth.Service
	rng    *rand.Rand
	now    func() time.Time
	log    log.FieldLogger
}

// skip reports whether err is a rule violation, which is logged and
// tolerated so that reruns against a populated store keep going.
func (s *seeder) skip(sum *summary, what string, err error) bool {
	v, ok := automation.IsValidation(err)
	if !ok {
		return false
	}
	sum.Skipped++
	s.log.WithField("errors", v.Errors).Warnf("skipped %s", what)
	return true
}

func (s *seeder) run(ctx context.Context, o options) (summary, error) {
	var sum summary

	if o.adminUser != "" {
		if err := s.ensureAdmin(ctx, o.adminUser, o.adminPassword); err != nil {
			return sum, err
		}
	}

	var vehicles []*models.Vehicle
	for i := 0; i < o.vehicles; i++ {
		m := vehicleModels[i%len(vehicleModels)]
		v, err := s.engine.RegisterVehicle(ctx, automation.VehicleDraft{
			NameModel:       m.name,
			LicensePlate:    fmt.Sprintf("%s-%03d", m.prefix, i+1),
			Type:            m.kind,
			MaxCapacityKg:   m.capacity,
			OdometerKm:      float64(s.rng.Intn(120000)),
			AcquisitionCost: float64(20000 + s.rng.Intn(80000)),
		})
		if err != nil {
			if s.skip(&sum, "vehicle", err) {
				continue
			}
			return sum, err
		}
		vehicles = append(vehicles, v)
		sum.Vehicles++
	}

	var drivers []*models.Driver
	for i := 0; i < o.drivers; i++ {
		// Every fourth driver has a license close to expiry.
		expiry := s.now().AddDate(1+s.rng.Intn(3), 0, 0)
		if i%4 == 3 {
			expiry = s.now().AddDate(0, 0, 10)
		}
		d, err := s.engine.RegisterDriver(ctx, automation.DriverDraft{
			Name:              driverNames[i%len(driverNames)],
			LicenseNumber:     fmt.Sprintf("DL-%05d", i+1),
			LicenseExpiryDate: expiry,
			Contact:           fmt.Sprintf("+1-555-01%02d", i%100),
			Status:            models.DriverOnDuty,
		})
		if err != nil {
			if s.skip(&sum, "driver", err) {
				continue
			}
			return sum, err
		}
		drivers = append(drivers, d)
		sum.Drivers++
	}

	// The last vehicle goes to the shop and is kept out of trip planning.
	if len(vehicles) > 1 {
		last := vehicles[len(vehicles)-1]
		vehicles = vehicles[:len(vehicles)-1]
		_, err := s.engine.OpenMaintenance(ctx, automation.MaintenanceDraft{
			Vehicle:     last.ID.Hex(),
			ServiceType: models.ServiceBrakeService,
			Description: "Front pads worn",
			Cost:        240,
		})
		if err != nil && !s.skip(&sum, "maintenance", err) {
			return sum, err
		}
	}

	if len(vehicles) > 0 && len(drivers) > 0 {
		for i := 0; i < o.trips; i++ {
			if err := s.plan(ctx, &sum, i, vehicles[i%len(vehicles)], drivers[i%len(drivers)]); err != nil {
				return sum, err
			}
		}
	}

	if _, err := s.engine.RunScans(ctx); err != nil {
		return sum, err
	}
	return sum, nil
}

// plan creates trip i and walks it forward: every trip is dispatched when
// its vehicle and driver are free, and every other one is completed with
// an expense.
func (s *seeder) plan(ctx context.Context, sum *summary, i int, v *models.Vehicle, d *models.Driver) error {
	from := places[s.rng.Intn(len(places))]
	to := places[(i+1+s.rng.Intn(len(places)-1))%len(places)]
	if to == from {
		to = places[(i+3)%len(places)]
	}
	distance := float64(10 + s.rng.Intn(400))
	trip, err := s.engine.CreateTrip(ctx, automation.TripDraft{
		PickupLocation:    from,
		DeliveryLocation:  to,
		CargoWeightKg:     v.MaxCapacityKg * (0.2 + 0.7*s.rng.Float64()),
		AssignedVehicle:   v.ID.Hex(),
		AssignedDriver:    d.ID.Hex(),
		DistanceKm:        distance,
		Revenue:           distance * 3.5,
		EstimatedFuelCost: distance * 0.9,
	})
	if err != nil {
		if s.skip(sum, "trip", err) {
			return nil
		}
		return err
	}
	sum.Trips++

	if _, err := s.engine.Dispatch(ctx, trip.ID.Hex()); err != nil {
		if s.skip(sum, "dispatch of "+trip.TripCode, err) {
			return nil
		}
		return err
	}
	if i%2 == 1 {
		return nil
	}

	if _, err := s.engine.Complete(ctx, trip.ID.Hex()); err != nil {
		return err
	}
	sum.Completed++
	liters := distance * 0.3
	if _, err := s.engine.RecordExpense(ctx, automation.ExpenseDraft{
		Trip:              trip.ID.Hex(),
		DistanceCoveredKm: distance,
		FuelLiters:        liters,
		FuelCost:          liters * 1.8,
		MiscCost:          float64(s.rng.Intn(40)),
		Description:       "Seeded trip costs",
	}); err != nil {
		return err
	}
	sum.Expenses++
	return nil
}

func (s *seeder) ensureAdmin(ctx context.Context, username, password string) error {
	if _, err := s.users.FindUserByUsername(ctx, username); err == nil {
		s.log.WithField("username", username).Info("admin account already exists")
		return nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}
	if err := s.auth.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return err
	}
	now := s.now()
	err = s.users.InsertUser(ctx, models.User{
		Username:     username,
		Email:        username + "@fleet.local",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Name:         "Administrator",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.log.WithField("username", username).Info("admin account created")
	return nil
}

func openStore(ctx context.Context, o options) (db.Store, func(), error) {
	switch o.store {
	case config.StoreMemory:
		return db.NewMemoryStore(), func() {}, nil
	case config.StoreMongo:
		client, err := db.ConnectMongo(ctx, o.mongoURI)
		if err != nil {
			return nil, nil, err
		}
		store := db.NewMongoStore(client.Database(o.mongoDB))
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		if err := store.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return store, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", o.store)
	}
}

func main() {
	defaults, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	o, err := parseFlags(os.Args[1:], defaults)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.WithError(err).Fatal("invalid flags")
	}
	level, err := log.ParseLevel(o.logLevel)
	if err != nil {
		log.WithError(err).Fatal("invalid log level")
	}
	log.SetLevel(level)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, closeStore, err := openStore(ctx, o)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer closeStore()

	logger := log.StandardLogger()
	s := &seeder{
		engine: automation.New(store, automation.Options{Logger: logger}),
		users:  store,
		auth:   auth.FromConfig(defaults),
		rng:    rand.New(rand.NewSource(o.randSeed)),
		now:    time.Now,
		log:    logger,
	}
	sum, err := s.run(ctx, o)
	if err != nil {
		log.WithError(err).Error("seeding failed")
		closeStore()
		os.Exit(1)
	}
	log.WithFields(log.Fields{
		"vehicles":  sum.Vehicles,
		"drivers":   sum.Drivers,
		"trips":     sum.Trips,
		"completed": sum.Completed,
		"expenses":  sum.Expenses,
		"skipped":   sum.Skipped,
	}).Info("seed complete")
}
