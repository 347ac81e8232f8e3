package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"parceltrack/internal/domain"
	"parceltrack/internal/engine/auth"
	"parceltrack/internal/repo"
)

// PropagationResult reports a container-wide transition. Members are
// transitioned independently; Modified counts only the successful ones.
type PropagationResult struct {
	ContainerID string               `json:"container_id"`
	State       domain.ParcelState   `json:"state"`
	Requested   int                  `json:"requested"`
	Modified    int                  `json:"modified"`
	Failures    []PropagationFailure `json:"failures"`
}

type PropagationFailure struct {
	ParcelID string `json:"parcel_id"`
	Reason   string `json:"reason"`
}

// AddContainerMembers creates the container on first use and unions the
// given parcel ids into its membership.
func (e Engine) AddContainerMembers(ctx context.Context, id string, parcelIDs []string) (domain.Container, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Container{}, invalid("missing_id", "container id is required")
	}
	now := e.now()
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.EnsureContainer(ctx, tx, id, now); err != nil {
			return err
		}
		return e.Repo.AddMembers(ctx, tx, id, parcelIDs, now)
	})
	if err != nil {
		return domain.Container{}, e.fail(ctx, "add container members", err)
	}
	e.log(ctx).Info().Str("container_id", id).Int("parcels", len(parcelIDs)).Msg("container members added")
	return e.GetContainer(ctx, id)
}

func (e Engine) RemoveContainerMembers(ctx context.Context, id string, parcelIDs []string) (domain.Container, error) {
	id = strings.TrimSpace(id)
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetContainer(ctx, tx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("container %s not found", id)
			}
			return err
		}
		return e.Repo.RemoveMembers(ctx, tx, id, parcelIDs)
	})
	if err != nil {
		return domain.Container{}, e.fail(ctx, "remove container members", err)
	}
	return e.GetContainer(ctx, id)
}

func (e Engine) GetContainer(ctx context.Context, id string) (domain.Container, error) {
	id = strings.TrimSpace(id)
	c, err := e.Repo.GetContainer(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Container{}, notFound("container %s not found", id)
	}
	if err != nil {
		return domain.Container{}, e.fail(ctx, "get container", err)
	}
	return c, nil
}

// ListContainerMembers returns member parcel ids sorted; possibly empty.
func (e Engine) ListContainerMembers(ctx context.Context, id string) ([]string, error) {
	c, err := e.GetContainer(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Members, nil
}

func (e Engine) ListContainers(ctx context.Context) ([]domain.Container, error) {
	items, err := e.Repo.ListContainers(ctx, nil)
	if err != nil {
		return nil, e.fail(ctx, "list containers", err)
	}
	return items, nil
}

// PropagateContainerState transitions every member to state. A member that
// is missing or cannot legally move is reported as a failure and does not
// affect the others.
func (e Engine) PropagateContainerState(ctx context.Context, id, state string) (PropagationResult, error) {
	target, ok := domain.ParseParcelState(state)
	if !ok {
		return PropagationResult{}, invalid("invalid_state", "unknown parcel state %q", state)
	}
	c, err := e.GetContainer(ctx, id)
	if err != nil {
		return PropagationResult{}, err
	}
	if len(c.Members) == 0 {
		return PropagationResult{}, &Error{Kind: KindNotFound, Code: "empty_container", Message: "container " + c.ID + " has no members"}
	}
	out := PropagationResult{
		ContainerID: c.ID,
		State:       target,
		Requested:   len(c.Members),
		Failures:    []PropagationFailure{},
	}
	for _, pid := range c.Members {
		if err := e.transitionParcel(ctx, pid, target); err != nil {
			out.Failures = append(out.Failures, PropagationFailure{ParcelID: pid, Reason: err.Error()})
			continue
		}
		out.Modified++
	}
	e.Metrics.Propagation(out.Modified, len(out.Failures))
	e.log(ctx).Info().
		Str("container_id", c.ID).
		Str("state", string(target)).
		Int("requested", out.Requested).
		Int("modified", out.Modified).
		Msg("container state propagated")
	return out, nil
}

// DeleteContainer removes the container and its membership. Member parcels
// are not touched.
func (e Engine) DeleteContainer(ctx context.Context, principal auth.Principal, id string) error {
	if err := e.Auth.Require(principal, auth.PermContainerDelete); err != nil {
		return e.fail(ctx, "delete container", err)
	}
	id = strings.TrimSpace(id)
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteContainer(ctx, tx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("container %s not found", id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return e.fail(ctx, "delete container", err)
	}
	e.log(ctx).Info().Str("container_id", id).Str("actor_id", principal.ActorID).Msg("container deleted")
	return nil
}
