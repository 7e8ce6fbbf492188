package database

import (
	"context"
	"errors"
	"fmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"licensebot/entity"
	"licensebot/internal/config"
	"time"
)

const (
	collectionLicenses = "licenses"
	collectionGrants   = "licensed_members"
	collectionGroups   = "groups"
	collectionRoles    = "licensed_roles"
)

type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

func NewMongoClient(ctx context.Context, conf *config.Config) (*MongoDB, error) {
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	return Connect(ctx, clientOptions, conf.Mongo.Database)
}

// Connect opens the client, checks the server is reachable and makes sure
// the unique indexes the store relies on exist.
func Connect(ctx context.Context, clientOptions *options.ClientOptions, database string) (*MongoDB, error) {
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	m := &MongoDB{
		client:   client,
		database: client.Database(database),
	}
	if err = m.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collectionLicenses: {
			{
				Keys:    bson.D{{"code", 1}},
				Options: options.Index().SetUnique(true).SetName("idx_license_code"),
			},
			{
				Keys:    bson.D{{"group_id", 1}, {"role_id", 1}},
				Options: options.Index().SetName("idx_license_group_role"),
			},
		},
		collectionGrants: {
			{
				Keys:    bson.D{{"member_id", 1}, {"role_id", 1}},
				Options: options.Index().SetUnique(true).SetName("idx_grant_member_role"),
			},
			{
				Keys:    bson.D{{"expires_at", 1}},
				Options: options.Index().SetName("idx_grant_expires"),
			},
		},
		collectionGroups: {
			{
				Keys:    bson.D{{"group_id", 1}},
				Options: options.Index().SetUnique(true).SetName("idx_group_id"),
			},
		},
		collectionRoles: {
			{
				Keys:    bson.D{{"role_id", 1}},
				Options: options.Index().SetUnique(true).SetName("idx_role_id"),
			},
		},
	}
	for name, models := range indexes {
		if _, err := m.database.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongodb indexes %s: %w", name, err)
		}
	}
	return nil
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

func (m *MongoDB) findError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return entity.ErrNotFound
	}
	return fmt.Errorf("mongodb find: %w", err)
}

func (m *MongoDB) insertError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return entity.ErrDuplicateKey
	}
	return fmt.Errorf("mongodb insert: %w", err)
}

func (m *MongoDB) InsertLicense(ctx context.Context, license *entity.License) error {
	_, err := m.collection(collectionLicenses).InsertOne(ctx, license)
	if err != nil {
		return m.insertError(err)
	}
	return nil
}

func (m *MongoDB) GetLicense(ctx context.Context, code string) (*entity.License, error) {
	var license entity.License
	err := m.collection(collectionLicenses).FindOne(ctx, bson.D{{"code", code}}).Decode(&license)
	if err != nil {
		return nil, m.findError(err)
	}
	return &license, nil
}

// PopLicense deletes the license and returns it; concurrent callers racing
// for the same code see exactly one success.
func (m *MongoDB) PopLicense(ctx context.Context, code string) (*entity.License, error) {
	var license entity.License
	err := m.collection(collectionLicenses).FindOneAndDelete(ctx, bson.D{{"code", code}}).Decode(&license)
	if err != nil {
		return nil, m.findError(err)
	}
	return &license, nil
}

func (m *MongoDB) DeleteLicense(ctx context.Context, code string) error {
	res, err := m.collection(collectionLicenses).DeleteOne(ctx, bson.D{{"code", code}})
	if err != nil {
		return fmt.Errorf("mongodb delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (m *MongoDB) CountLicenses(ctx context.Context, groupID int64) (int, error) {
	n, err := m.collection(collectionLicenses).CountDocuments(ctx, bson.D{{"group_id", groupID}})
	if err != nil {
		return 0, fmt.Errorf("mongodb count: %w", err)
	}
	return int(n), nil
}

func (m *MongoDB) ListLicenses(ctx context.Context, groupID, roleID int64, limit int) ([]*entity.License, error) {
	filter := bson.D{{"group_id", groupID}, {"role_id", roleID}}
	opts := options.Find().SetSort(bson.D{{"created_at", 1}, {"_id", 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var licenses []*entity.License
	if err := m.findAll(ctx, collectionLicenses, filter, &licenses, opts); err != nil {
		return nil, err
	}
	return licenses, nil
}

func (m *MongoDB) RandomLicenses(ctx context.Context, groupID int64, limit int) ([]*entity.License, error) {
	pipeline := mongo.Pipeline{
		{{"$match", bson.D{{"group_id", groupID}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{"$sample", bson.D{{"size", limit}}}})
	}
	cursor, err := m.collection(collectionLicenses).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	var licenses []*entity.License
	if err = cursor.All(ctx, &licenses); err != nil {
		return nil, fmt.Errorf("mongodb decode: %w", err)
	}
	return licenses, nil
}

func (m *MongoDB) DeleteGroupLicenses(ctx context.Context, groupID int64) (int64, error) {
	res, err := m.collection(collectionLicenses).DeleteMany(ctx, bson.D{{"group_id", groupID}})
	if err != nil {
		return 0, fmt.Errorf("mongodb delete: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *MongoDB) InsertGrant(ctx context.Context, grant *entity.Grant) error {
	_, err := m.collection(collectionGrants).InsertOne(ctx, grant)
	if err != nil {
		return m.insertError(err)
	}
	return nil
}

func (m *MongoDB) DeleteGrant(ctx context.Context, memberID, roleID int64) error {
	filter := bson.D{{"member_id", memberID}, {"role_id", roleID}}
	res, err := m.collection(collectionGrants).DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("mongodb delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (m *MongoDB) GetGrantExpiration(ctx context.Context, memberID, roleID int64) (time.Time, error) {
	filter := bson.D{{"member_id", memberID}, {"role_id", roleID}}
	var grant entity.Grant
	err := m.collection(collectionGrants).FindOne(ctx, filter).Decode(&grant)
	if err != nil {
		return time.Time{}, m.findError(err)
	}
	return grant.ExpiresAt, nil
}

func (m *MongoDB) ListGrants(ctx context.Context) ([]*entity.Grant, error) {
	return m.grants(ctx, bson.D{})
}

func (m *MongoDB) MemberGrants(ctx context.Context, groupID, memberID int64) ([]*entity.Grant, error) {
	return m.grants(ctx, bson.D{{"group_id", groupID}, {"member_id", memberID}})
}

func (m *MongoDB) grants(ctx context.Context, filter bson.D) ([]*entity.Grant, error) {
	opts := options.Find().SetSort(bson.D{{"expires_at", 1}})
	var grants []*entity.Grant
	if err := m.findAll(ctx, collectionGrants, filter, &grants, opts); err != nil {
		return nil, err
	}
	return grants, nil
}

func (m *MongoDB) DeleteGroupData(ctx context.Context, groupID int64, includeLicenses bool) error {
	filter := bson.D{{"group_id", groupID}}
	if _, err := m.collection(collectionGrants).DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("mongodb delete grants: %w", err)
	}
	if includeLicenses {
		if _, err := m.collection(collectionLicenses).DeleteMany(ctx, filter); err != nil {
			return fmt.Errorf("mongodb delete licenses: %w", err)
		}
	}
	return nil
}

func (m *MongoDB) DeleteRoleData(ctx context.Context, roleID int64) error {
	filter := bson.D{{"role_id", roleID}}
	if _, err := m.collection(collectionGrants).DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("mongodb delete grants: %w", err)
	}
	if _, err := m.collection(collectionLicenses).DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("mongodb delete licenses: %w", err)
	}
	update := bson.D{{"$set", bson.D{{"default_role_id", 0}}}}
	if _, err := m.collection(collectionGroups).UpdateMany(ctx, bson.D{{"default_role_id", roleID}}, update); err != nil {
		return fmt.Errorf("mongodb clear default role: %w", err)
	}
	if _, err := m.collection(collectionRoles).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("mongodb delete role: %w", err)
	}
	return nil
}

// SetupGroup inserts the settings unless the group is already known.
func (m *MongoDB) SetupGroup(ctx context.Context, settings *entity.GroupSettings) error {
	filter := bson.D{{"group_id", settings.GroupID}}
	update := bson.D{{"$setOnInsert", settings}}
	opts := options.Update().SetUpsert(true)
	_, err := m.collection(collectionGroups).UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("mongodb setup group: %w", err)
	}
	return nil
}

func (m *MongoDB) GetGroupSettings(ctx context.Context, groupID int64) (*entity.GroupSettings, error) {
	var settings entity.GroupSettings
	err := m.collection(collectionGroups).FindOne(ctx, bson.D{{"group_id", groupID}}).Decode(&settings)
	if err != nil {
		return nil, m.findError(err)
	}
	return &settings, nil
}

func (m *MongoDB) UpdateGroupSettings(ctx context.Context, settings *entity.GroupSettings) error {
	res, err := m.collection(collectionGroups).ReplaceOne(ctx, bson.D{{"group_id", settings.GroupID}}, settings)
	if err != nil {
		return fmt.Errorf("mongodb update group: %w", err)
	}
	if res.MatchedCount == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (m *MongoDB) RemoveGroup(ctx context.Context, groupID int64) error {
	filter := bson.D{{"group_id", groupID}}
	for _, name := range []string{collectionGrants, collectionLicenses, collectionRoles, collectionGroups} {
		if _, err := m.collection(name).DeleteMany(ctx, filter); err != nil {
			return fmt.Errorf("mongodb remove group from %s: %w", name, err)
		}
	}
	return nil
}

func (m *MongoDB) SaveRole(ctx context.Context, role *entity.Role) error {
	opts := options.Replace().SetUpsert(true)
	_, err := m.collection(collectionRoles).ReplaceOne(ctx, bson.D{{"role_id", role.ID}}, role, opts)
	if err != nil {
		return fmt.Errorf("mongodb save role: %w", err)
	}
	return nil
}

func (m *MongoDB) GetRole(ctx context.Context, roleID int64) (*entity.Role, error) {
	var role entity.Role
	err := m.collection(collectionRoles).FindOne(ctx, bson.D{{"role_id", roleID}}).Decode(&role)
	if err != nil {
		return nil, m.findError(err)
	}
	return &role, nil
}

func (m *MongoDB) ListRoles(ctx context.Context, groupID int64) ([]*entity.Role, error) {
	opts := options.Find().SetSort(bson.D{{"name", 1}})
	var roles []*entity.Role
	if err := m.findAll(ctx, collectionRoles, bson.D{{"group_id", groupID}}, &roles, opts); err != nil {
		return nil, err
	}
	return roles, nil
}

func (m *MongoDB) findAll(ctx context.Context, name string, filter bson.D, results interface{}, opts *options.FindOptions) error {
	cursor, err := m.collection(name).Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("mongodb find: %w", err)
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, results); err != nil {
		return fmt.Errorf("mongodb decode: %w", err)
	}
	return nil
}
