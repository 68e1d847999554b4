package model

import "go.mongodb.org/mongo-driver/bson/primitive"

type (
	User struct {
		ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
		Email        string             `bson:"email" json:"email"`
		Name         string             `bson:"name" json:"name"`
		PasswordHash []byte             `bson:"password_hash" json:"-"`
	}
)
