package chatroom

import "errors"

// Validation errors are returned before the store is touched.
var ErrInvalidArgument = errors.New("invalid argument")

// State errors.
var (
	ErrNotFound                       = errors.New("not found")
	ErrNoPermission                   = errors.New("no permission")
	ErrNotMember                      = errors.New("not a member of this chatroom")
	ErrAlreadyMember                  = errors.New("already a member of this chatroom")
	ErrBanned                         = errors.New("banned from this chatroom")
	ErrOwnerCannotLeave               = errors.New("chatroom owner cannot leave, transfer ownership first")
	ErrCannotRemoveOwner              = errors.New("cannot remove the chatroom owner")
	ErrMustBeMemberToReceiveOwnership = errors.New("user must be a chatroom member to receive ownership")
	ErrAlreadyMuted                   = errors.New("user is already muted")
	ErrNotMuted                       = errors.New("user is not muted")
	ErrCannotBanOwner                 = errors.New("cannot ban the chatroom owner")
	ErrAlreadyBanned                  = errors.New("user is already banned from this chatroom")
	ErrNotBanned                      = errors.New("user is not banned from this chatroom")
	ErrCrossRoom                      = errors.New("cannot reply to a message from a different chatroom")
	ErrCyclicReply                    = errors.New("reply would create a cycle")
	ErrMuted                          = errors.New("user is muted in this chatroom")
	ErrNotAuthor                      = errors.New("only the message author can edit this message")
	ErrAlreadyReacted                 = errors.New("user already reacted with this emoji")
	ErrAlreadyAssigned                = errors.New("user already has this role assigned")
	ErrNotAssigned                    = errors.New("user does not have this role assigned")
	ErrOwnsRooms                      = errors.New("user owns chatrooms, transfer ownership first")
)

// Code returns a stable identifier for err's kind, or "" when err is not one
// of this package's errors.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidArgument, "invalid_argument"},
	{ErrNotFound, "not_found"},
	{ErrNoPermission, "no_permission"},
	{ErrNotMember, "not_member"},
	{ErrAlreadyMember, "already_member"},
	{ErrBanned, "banned"},
	{ErrOwnerCannotLeave, "owner_cannot_leave"},
	{ErrCannotRemoveOwner, "cannot_remove_owner"},
	{ErrMustBeMemberToReceiveOwnership, "must_be_member_to_receive_ownership"},
	{ErrAlreadyMuted, "already_muted"},
	{ErrNotMuted, "not_muted"},
	{ErrCannotBanOwner, "cannot_ban_owner"},
	{ErrAlreadyBanned, "already_banned"},
	{ErrNotBanned, "not_banned"},
	{ErrCrossRoom, "cross_room"},
	{ErrCyclicReply, "cyclic_reply"},
	{ErrMuted, "muted"},
	{ErrNotAuthor, "not_author"},
	{ErrAlreadyReacted, "already_reacted"},
	{ErrAlreadyAssigned, "already_assigned"},
	{ErrNotAssigned, "not_assigned"},
	{ErrOwnsRooms, "owns_rooms"},
}
