package store

import (
	"gorm.io/gorm/clause"

	"github.com/sentinelvision/sentinel-go/internal/errors"
)

// AddRelatedUser links two users for notification fan-out. The link is
// symmetric; one call covers both directions and repeating it is a no-op.
func (ds *DataStore) AddRelatedUser(userID, relatedID string) error {
	if userID == relatedID {
		return errors.Newf("cannot relate user %s to itself", userID).
			Component("store").
			Category(errors.CategoryValidation).
			Build()
	}
	// Canonical ordering keeps the pair unique regardless of call order.
	a, b := userID, relatedID
	if b < a {
		a, b = b, a
	}
	record := UserRelationship{
		UserID:    a,
		RelatedID: b,
		CreatedAt: ds.clock.Now(),
	}
	err := ds.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "add_related_user").
			Build()
	}
	return nil
}

// RemoveRelatedUser unlinks two users.
func (ds *DataStore) RemoveRelatedUser(userID, relatedID string) error {
	a, b := userID, relatedID
	if b < a {
		a, b = b, a
	}
	err := ds.DB.
		Where("user_id = ? AND related_id = ?", a, b).
		Delete(&UserRelationship{}).Error
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "remove_related_user").
			Build()
	}
	return nil
}

// RelatedUsers returns every user linked to the given user, in either
// direction.
func (ds *DataStore) RelatedUsers(userID string) ([]string, error) {
	var rows []UserRelationship
	err := ds.DB.
		Where("user_id = ? OR related_id = ?", userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "related_users").
			Context("user_id", userID).
			Build()
	}
	related := make([]string, 0, len(rows))
	for i := range rows {
		if rows[i].UserID == userID {
			related = append(related, rows[i].RelatedID)
		} else {
			related = append(related, rows[i].UserID)
		}
	}
	return related, nil
}
