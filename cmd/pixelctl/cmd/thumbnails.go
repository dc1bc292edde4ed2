package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/templui/pixelplan/internal/app"
	"github.com/templui/pixelplan/internal/model"
)

func ThumbnailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thumbnails",
		Short: "Thumbnail maintenance",
	}

	cmd.AddCommand(thumbnailsEnsureCmd())
	return cmd
}

func thumbnailsEnsureCmd() *cobra.Command {
	var imageID string
	var all bool

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Generate thumbnails missing for the owner's current plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (imageID == "") == !all {
				return errors.New("exactly one of --image or --all is required")
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				var images []*model.Image
				if all {
					var err error
					images, err = a.ImageRepository.All(cmd.Context())
					if err != nil {
						return err
					}
				} else {
					image, err := a.ImageRepository.ByID(cmd.Context(), imageID)
					if err != nil {
						return fmt.Errorf("image %s: %w", imageID, err)
					}
					images = []*model.Image{image}
				}

				var errs []error
				created := 0
				for _, image := range images {
					thumbnails, err := a.ThumbnailService.EnsureThumbnails(cmd.Context(), image)
					created += len(thumbnails)
					if err != nil {
						errs = append(errs, fmt.Errorf("image %s: %w", image.ID, err))
					}
				}

				fmt.Printf("checked %d images, created %d thumbnails\n", len(images), created)
				return errors.Join(errs...)
			})
		},
	}

	cmd.Flags().StringVar(&imageID, "image", "", "image id")
	cmd.Flags().BoolVar(&all, "all", false, "every stored image")
	return cmd
}
