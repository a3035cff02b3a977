package users

type CreateMyUserInput struct {
	DisplayName string
	Email       string
}
